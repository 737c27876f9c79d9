// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/approval"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

func (a *App) newApprovalsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "approvals",
		Aliases: []string{"approval"},
		Short:   "Review answers waiting for human approval",
	}
	cmd.AddCommand(a.newApprovalsListCommand(), a.newApprovalsApproveCommand(), a.newApprovalsRejectCommand())
	return cmd
}

func (a *App) newApprovalsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			queue := approval.NewQueue(rt.Client, rt.Logger)
			if err := queue.Refresh(cmd.Context()); err != nil {
				return err
			}
			pending := queue.Pending()
			return a.emit("approvals list", pending, func(w io.Writer) {
				if len(pending) == 0 {
					fmt.Fprintln(w, DimStyle.Render("No answers are waiting for review."))
					return
				}
				rows := make([][]string, len(pending))
				for i, p := range pending {
					rows[i] = []string{p.ID.String(), valueOr(p.Priority, "-"), formatTime(p.CreatedAt), util.FirstLine(p.OriginalAnswer)}
				}
				table(w, []Column{{Title: "ID"}, {Title: "PRIORITY"}, {Title: "CREATED"}, {Title: "ANSWER", Width: 60}}, rows)
			})
		},
	}
}

func (a *App) newApprovalsApproveCommand() *cobra.Command {
	var edited string
	cmd := &cobra.Command{
		Use:   "approve <approval-id>",
		Short: "Approve an answer, optionally replacing its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			queue := approval.NewQueue(rt.Client, rt.Logger)
			if err := queue.Approve(cmd.Context(), args[0], edited); err != nil {
				return err
			}
			return a.decided("approvals approve", "Approved", args[0], queue)
		},
	}
	cmd.Flags().StringVar(&edited, "edit", "", "replace the answer with this text")
	return cmd
}

func (a *App) newApprovalsRejectCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <approval-id>",
		Short: "Reject an answer with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			queue := approval.NewQueue(rt.Client, rt.Logger)
			if err := queue.Reject(cmd.Context(), args[0], reason); err != nil {
				if errors.Is(err, approval.ErrReasonRequired) {
					return usageErrorf("%v: pass --reason", err)
				}
				return err
			}
			return a.decided("approvals reject", "Rejected", args[0], queue)
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the answer is rejected (required)")
	return cmd
}

// decided reports a decision and how many answers are still waiting.
func (a *App) decided(command, verb, id string, queue *approval.Queue) error {
	remaining := len(queue.Pending())
	data := map[string]any{"id": id, "pending": remaining}
	return a.done(command, data, "%s %s (%d still pending)", verb, id, remaining)
}
