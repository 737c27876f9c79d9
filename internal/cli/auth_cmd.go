// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

func (a *App) newLoginCommand() *cobra.Command {
	var email string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Long: `Log in to the KnowledgeOps backend. The password is read without echo
from the terminal, or from the first line of stdin with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}

			if email == "" {
				fmt.Fprint(a.streams.Err, "Email: ")
				if email, err = a.readLine(); err != nil {
					return fmt.Errorf("failed to read email: %w", err)
				}
			}
			if email == "" {
				return usageErrorf("email is required")
			}

			password, err := a.readPassword(passwordStdin)
			if err != nil {
				return err
			}
			if password == "" {
				return usageErrorf("password is required")
			}

			resp, err := rt.Client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			sess, err := rt.Store.Save(*resp)
			if err != nil {
				return err
			}

			return a.emit("login", sess.User, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Logged in as"), describeUser(sess.User))
				fmt.Fprintln(w, DimStyle.Render("Session valid until "+formatTime(sess.ExpiresAt)))
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

// readPassword prompts without echo on a terminal and otherwise reads a
// line from the input stream.
func (a *App) readPassword(fromStdin bool) (string, error) {
	if f, ok := a.streams.In.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.streams.Err, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.streams.Err)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}
	if !fromStdin {
		fmt.Fprint(a.streams.Err, "Password: ")
	}
	line, err := a.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return line, nil
}

func (a *App) newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			if err := rt.Store.Clear(); err != nil {
				return err
			}
			rt.Client.Logout()
			return a.done("logout", nil, "Logged out")
		},
	}
}

func (a *App) newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			sess, err := rt.Store.Load()
			if err != nil {
				return err
			}
			return a.emit("whoami", sess.User, func(w io.Writer) {
				u := sess.User
				field(w, "User", describeUser(u))
				field(w, "Role", valueOr(u.Role, "-"))
				field(w, "Tenant", valueOr(u.TenantName, u.TenantID.String()))
				if len(u.Departments) > 0 {
					field(w, "Departments", strings.Join(u.Departments, ", "))
				}
				field(w, "Server", rt.Config.API.URL)
				field(w, "Expires", formatTime(sess.ExpiresAt))
			})
		},
	}
}

func describeUser(u model.User) string {
	if u.Name != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	return u.Email
}
