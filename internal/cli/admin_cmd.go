// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/training"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/util"
)

// =============================================================================
// DEPARTMENTS
// =============================================================================

func (a *App) newDepartmentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "departments",
		Aliases: []string{"department", "depts"},
		Short:   "List and administer departments",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			depts, err := rt.Client.ListDepartments(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit("departments list", depts, func(w io.Writer) {
				rows := make([][]string, len(depts))
				for i, d := range depts {
					rows[i] = []string{d.ID.String(), d.Slug, d.Name, valueOr(d.Status, "active"), util.FirstLine(d.Description)}
				}
				table(w, []Column{{Title: "ID"}, {Title: "SLUG"}, {Title: "NAME"}, {Title: "STATUS"}, {Title: "DESCRIPTION", Width: 40}}, rows)
			})
		},
	}

	var in struct{ name, slug, icon, description, config string }
	bindInput := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&in.name, "name", "", "department name")
		cmd.Flags().StringVar(&in.slug, "slug", "", "URL-safe short name")
		cmd.Flags().StringVar(&in.icon, "icon", "", "icon")
		cmd.Flags().StringVar(&in.description, "description", "", "description")
		cmd.Flags().StringVar(&in.config, "config", "", "department config as a JSON object")
	}
	input := func(cmd *cobra.Command) (model.DepartmentInput, error) {
		var out model.DepartmentInput
		set := func(flag string, v string) *string {
			if cmd.Flags().Changed(flag) {
				return &v
			}
			return nil
		}
		out.Name = set("name", in.name)
		out.Slug = set("slug", in.slug)
		out.Icon = set("icon", in.icon)
		out.Description = set("description", in.description)
		if cmd.Flags().Changed("config") {
			cfg, err := training.ParseConfig(in.config)
			if err != nil {
				return out, err
			}
			out.Config = cfg
		}
		return out, nil
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := input(cmd)
			if err != nil {
				return err
			}
			if body.Name == nil || body.Slug == nil {
				return usageErrorf("--name and --slug are required")
			}
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			d, err := rt.Client.CreateDepartment(cmd.Context(), body)
			if err != nil {
				return err
			}
			return a.done("departments create", d, "Created department %s (%s)", d.Name, d.ID)
		},
	}
	bindInput(create)

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := input(cmd)
			if err != nil {
				return err
			}
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			d, err := rt.Client.UpdateDepartment(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			return a.done("departments update", d, "Updated department %s", d.Name)
		},
	}
	bindInput(update)

	var yes bool
	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			if err := a.confirm("archive department "+args[0], nil, ConfirmationOptions{Yes: yes, JSONMode: a.flags.JSON}); err != nil {
				return err
			}
			if err := rt.Client.ArchiveDepartment(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.done("departments archive", map[string]string{"id": args[0]}, "Archived department %s", args[0])
		},
	}
	bindYes(archive.Flags(), &yes)

	cmd.AddCommand(list, create, update, archive)
	return cmd
}

// =============================================================================
// ANALYTICS
// =============================================================================

func (a *App) newAnalyticsCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show usage and AI performance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return usageErrorf("--days must be positive")
			}
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			now := time.Now()
			period := api.Period{From: now.AddDate(0, 0, -days), To: now}
			usage, err := rt.Client.UsageStats(cmd.Context(), period)
			if err != nil {
				return err
			}
			perf, err := rt.Client.AIPerformance(cmd.Context(), period)
			if err != nil {
				return err
			}

			data := map[string]any{"usage": usage, "performance": perf}
			return a.emit("analytics", data, func(w io.Writer) {
				fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("Last %d days", days)))
				field(w, "Queries", usage.TotalQueries)
				field(w, "Active users", usage.ActiveUsers)
				field(w, "Avg latency", fmt.Sprintf("%.0fms", perf.AvgLatencyMS))
				field(w, "Tokens in/out", fmt.Sprintf("%d / %d", perf.TotalTokensInput, perf.TotalTokensOutput))
				if perf.DriftDetected {
					field(w, "Drift", WarningStyle.Render("detected"))
				} else {
					field(w, "Drift", "none")
				}
				if n := len(perf.ConfidenceTrend); n > 0 {
					field(w, "Confidence", fmt.Sprintf("%.0f%% (%s)", perf.ConfidenceTrend[n-1].AvgConfidence*100, perf.ConfidenceTrend[n-1].Date))
				}
				if len(usage.ByDepartment) > 0 {
					fmt.Fprintln(w)
					rows := make([][]string, len(usage.ByDepartment))
					for i, d := range usage.ByDepartment {
						rows[i] = []string{d.Department, fmt.Sprint(d.Queries)}
					}
					table(w, []Column{{Title: "DEPARTMENT"}, {Title: "QUERIES"}}, rows)
				}
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "reporting window in days")
	return cmd
}

// =============================================================================
// API KEYS
// =============================================================================

func (a *App) newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keys",
		Aliases: []string{"api-keys"},
		Short:   "Manage tenant API keys",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			keys, err := rt.Client.ListAPIKeys(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit("keys list", keys, func(w io.Writer) {
				rows := make([][]string, len(keys))
				for i, k := range keys {
					rows[i] = []string{k.ID.String(), k.Name, k.KeyPrefix + "...", k.Status, fmt.Sprint(k.RateLimit), formatTimePtr(k.LastUsedAt)}
				}
				table(w, []Column{{Title: "ID"}, {Title: "NAME"}, {Title: "KEY"}, {Title: "STATUS"}, {Title: "RATE"}, {Title: "LAST USED"}}, rows)
			})
		},
	}

	var req model.APIKeyRequest
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key and print it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			req.Name = args[0]
			key, err := rt.Client.CreateAPIKey(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.emit("keys create", key, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Created API key"), key.Name)
				fmt.Fprintln(w, key.RawKey)
				fmt.Fprintln(w, WarningStyle.Render("Store this key now; it will not be shown again."))
			})
		},
	}
	create.Flags().IntVar(&req.RateLimit, "rate-limit", 0, "requests per minute (0 = server default)")

	var yes bool
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			if err := a.confirm("revoke API key "+args[0], nil, ConfirmationOptions{Yes: yes, JSONMode: a.flags.JSON}); err != nil {
				return err
			}
			if err := rt.Client.RevokeAPIKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.done("keys revoke", map[string]string{"id": args[0]}, "Revoked API key %s", args[0])
		},
	}
	bindYes(revoke.Flags(), &yes)

	cmd.AddCommand(list, create, revoke)
	return cmd
}

// =============================================================================
// TEAM
// =============================================================================

func (a *App) newTeamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "List and invite tenant users",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			users, err := rt.Client.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit("team list", users, func(w io.Writer) {
				rows := make([][]string, len(users))
				for i, u := range users {
					rows[i] = []string{u.Email, valueOr(u.FullName, "-"), u.Role, formatTimePtr(u.LastLoginAt)}
				}
				table(w, []Column{{Title: "EMAIL"}, {Title: "NAME"}, {Title: "ROLE"}, {Title: "LAST LOGIN"}}, rows)
			})
		},
	}

	var req model.InviteRequest
	invite := &cobra.Command{
		Use:   "invite <email>",
		Short: "Invite a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			req.Email = args[0]
			m, err := rt.Client.InviteUser(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.done("team invite", m, "Invited %s as %s", m.Email, m.Role)
		},
	}
	invite.Flags().StringVar(&req.FullName, "name", "", "full name")
	invite.Flags().StringVar(&req.Role, "role", "member", "role (admin, manager, member)")
	invite.Flags().StringVar(&req.Password, "password", "", "initial password")

	cmd.AddCommand(list, invite)
	return cmd
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func (a *App) newConversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"history"},
		Short:   "List and delete past conversations",
	}

	var department string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			deptID := ""
			if department != "" {
				dept, err := resolveDepartment(cmd.Context(), rt, department)
				if err != nil {
					return err
				}
				deptID = dept.ID.String()
			}
			if limit <= 0 {
				limit = rt.Config.API.HistoryLimit
			}
			convs, err := rt.Client.ListConversations(cmd.Context(), deptID, limit)
			if err != nil {
				return err
			}
			return a.emit("conversations list", convs, func(w io.Writer) {
				if len(convs) == 0 {
					fmt.Fprintln(w, DimStyle.Render("No conversations yet."))
					return
				}
				rows := make([][]string, len(convs))
				for i, c := range convs {
					last := c.UpdatedAt
					if c.LastMessageAt != nil {
						last = *c.LastMessageAt
					}
					rows[i] = []string{c.ID.String(), fmt.Sprint(c.MessageCount), formatTime(last), c.DisplayTitle()}
				}
				table(w, []Column{{Title: "ID"}, {Title: "MESSAGES"}, {Title: "UPDATED"}, {Title: "TITLE", Width: 50}}, rows)
			})
		},
	}
	list.Flags().StringVarP(&department, "department", "d", "", "only this department")
	list.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of conversations")

	var yes bool
	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			if err := a.confirm("delete conversation "+args[0], nil, ConfirmationOptions{Yes: yes, JSONMode: a.flags.JSON}); err != nil {
				return err
			}
			if err := rt.Client.DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.done("conversations delete", map[string]string{"id": args[0]}, "Deleted conversation %s", args[0])
		},
	}
	bindYes(remove.Flags(), &yes)

	cmd.AddCommand(list, remove)
	return cmd
}
