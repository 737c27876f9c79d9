// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the kops TUI.

All colors use Lip Gloss AdaptiveColor so the same palette works on light
and dark terminals. The terminal's color profile is detected with termenv
when a Theme is created; the "dark" and "light" theme settings override
background detection.

# Message styles

	UserBubble      - questions typed by the user
	AssistantBubble - answers from the knowledge base
	ErrorBubble     - failed queries
	Pending         - "Pending human review" badge

# Confidence

Answer confidence is colored by band:

	>= 0.8  Emerald
	>= 0.5  Amber
	<  0.5  Rose

Use Theme.Confidence to get the style for a score.
*/
package styles
