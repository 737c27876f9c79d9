// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/chat"
)

// AskFlags are the flags of kops ask.
type AskFlags struct {
	Department     string
	ConversationID string
	Image          string
	Sources        bool
}

func (a *App) newAskCommand() *cobra.Command {
	f := &AskFlags{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Example: `  kops ask "How do I reset my VPN token?"
  kops ask --department hr "How many leave days do I have?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			image, err := loadAttachment(f.Image)
			if err != nil {
				return err
			}
			dept, err := resolveDepartment(ctx, rt, f.Department)
			if err != nil {
				return err
			}

			view := chat.NewView(rt.Client, dept.ID.String(), chat.WithLogger(rt.Logger))
			if f.ConversationID != "" {
				view.Open(ctx, f.ConversationID)
			}
			out, err := view.SendMessage(ctx, strings.Join(args, " "), image)
			if err != nil {
				return err
			}
			if out.Err != nil {
				return out.Err
			}

			printer := a.newAnswerPrinter(rt)
			return a.emit("ask", out.Message, func(w io.Writer) {
				printer.print(w, out.Message, f.Sources)
			})
		},
	}
	cmd.Flags().StringVarP(&f.Department, "department", "d", "", "department id or slug")
	cmd.Flags().StringVarP(&f.ConversationID, "conversation", "c", "", "continue an existing conversation")
	cmd.Flags().StringVar(&f.Image, "image", "", "attach an image file")
	cmd.Flags().BoolVarP(&f.Sources, "sources", "s", false, "list the cited sources")
	return cmd
}
