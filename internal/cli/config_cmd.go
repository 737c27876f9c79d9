// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/config"
)

func (a *App) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the kops configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with the secret redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if a.flags.JSON {
				redacted := *cfg
				if redacted.Session.Secret != "" {
					redacted.Session.Secret = "[REDACTED]"
				}
				return NewJSONResponse("config show", redacted).Print(a.streams.Out)
			}
			fmt.Fprint(a.streams.Out, cfg.String())
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config, session and log file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			cfgPath := a.flags.ConfigPath
			if cfgPath == "" {
				if cfgPath, err = config.ConfigPathTOML(); err != nil {
					return err
				}
			}
			sessionPath, err := cfg.SessionPath()
			if err != nil {
				return err
			}
			logPath, err := cfg.LogPath()
			if err != nil {
				return err
			}
			paths := map[string]string{"config": cfgPath, "session": sessionPath, "log": logPath}
			return a.emit("config path", paths, func(w io.Writer) {
				field(w, "Config", cfgPath)
				field(w, "Session", sessionPath)
				field(w, "Log", logPath)
			})
		},
	}

	cmd.AddCommand(show, path)
	return cmd
}
