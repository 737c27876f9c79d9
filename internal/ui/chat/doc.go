// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat screen of the kops TUI.

The screen is a Bubble Tea model over an internal/chat View. Sending a
question appends the user message immediately and resolves the answer in
a command, so the viewport shows "Thinking..." while the backend works.

# Focus

The input line has focus by default. Tab moves focus to the message list,
where up/down select an answer and the review keys act on it:

	a  approve the selected answer
	e  approve with an edited answer
	r  reject (prompts for a reason)
	s  show or hide sources

Esc returns focus to the input.

# Global keys

	enter   send / confirm
	ctrl+n  new chat
	ctrl+h  conversation history
	ctrl+d  next department
	ctrl+c  quit

# Rendering (render.go)

RenderMessage draws one message with its role, confidence, model,
latency, review badge and optional sources. Assistant answers are rendered
as markdown with glamour when enabled.
*/
package chat
