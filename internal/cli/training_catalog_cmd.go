// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/training"
)

// patchFlags collects the flags a user set into an update patch.
type patchFlags struct {
	fs     *pflag.FlagSet
	patch  map[string]any
	errors []error
}

func newPatch(fs *pflag.FlagSet) *patchFlags {
	return &patchFlags{fs: fs, patch: map[string]any{}}
}

func (p *patchFlags) str(flag, key string, v string) {
	if p.fs.Changed(flag) {
		p.patch[key] = v
	}
}

func (p *patchFlags) boolean(flag, key string, v bool) {
	if p.fs.Changed(flag) {
		p.patch[key] = v
	}
}

func (p *patchFlags) number(flag, key string, v float64) {
	if p.fs.Changed(flag) {
		p.patch[key] = v
	}
}

func (p *patchFlags) json(flag, key string, raw string) {
	if !p.fs.Changed(flag) {
		return
	}
	cfg, err := training.ParseConfig(raw)
	if err != nil {
		p.errors = append(p.errors, err)
		return
	}
	p.patch[key] = cfg
}

func (p *patchFlags) result() (map[string]any, error) {
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	if len(p.patch) == 0 {
		return nil, usageErrorf("nothing to update: pass at least one field flag")
	}
	return p.patch, nil
}

// removeCommand builds "<noun> remove <id>" with confirmation.
func (a *App) removeCommand(noun string, remove func(ctx context.Context, cat *training.Catalog, id string) error) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a " + noun,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			id := args[0]
			if err := a.confirm("delete "+noun+" "+id, nil, ConfirmationOptions{Yes: yes, JSONMode: a.flags.JSON}); err != nil {
				return err
			}
			if err := remove(cmd.Context(), cat, id); err != nil {
				return err
			}
			return a.done("train "+noun+" remove", map[string]string{"id": id}, "Deleted %s %s", noun, id)
		},
	}
	bindYes(cmd.Flags(), &yes)
	return cmd
}

// =============================================================================
// METHODS
// =============================================================================

func (a *App) newTrainMethodCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "method",
		Short: "Manage training methods",
	}

	var add model.TrainingMethod
	var addConfig string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a training method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := training.ParseConfig(addConfig)
			if err != nil {
				return err
			}
			add.DefaultConfig = cfg
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			created, err := cat.AddMethod(cmd.Context(), add)
			if err != nil {
				return err
			}
			return a.done("train method add", created, "Created method %s (%s)", created.MethodKey, created.ID)
		},
	}
	addCmd.Flags().StringVar(&add.Name, "name", "", "display name")
	addCmd.Flags().StringVar(&add.MethodKey, "key", "", "method key, e.g. lora")
	addCmd.Flags().StringVar(&add.Description, "description", "", "description")
	addCmd.Flags().StringVar(&addConfig, "config", "", "default config as a JSON object")

	var (
		upd       model.TrainingMethod
		updConfig string
		updActive bool
	)
	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a training method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPatch(cmd.Flags())
			p.str("name", "name", upd.Name)
			p.str("key", "method_key", upd.MethodKey)
			p.str("description", "description", upd.Description)
			p.json("config", "default_config", updConfig)
			p.boolean("active", "is_active", updActive)
			patch, err := p.result()
			if err != nil {
				return err
			}
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			key := upd.MethodKey
			if key == "" {
				key, err = a.methodKey(cmd.Context(), args[0])
				if err != nil {
					return err
				}
			}
			updated, err := cat.UpdateMethod(cmd.Context(), args[0], key, patch)
			if err != nil {
				return err
			}
			return a.done("train method update", updated, "Updated method %s", args[0])
		},
	}
	updateCmd.Flags().StringVar(&upd.Name, "name", "", "display name")
	updateCmd.Flags().StringVar(&upd.MethodKey, "key", "", "method key")
	updateCmd.Flags().StringVar(&upd.Description, "description", "", "description")
	updateCmd.Flags().StringVar(&updConfig, "config", "", "default config as a JSON object")
	updateCmd.Flags().BoolVar(&updActive, "active", true, "whether the method can be used")

	cmd.AddCommand(addCmd, updateCmd, a.removeCommand("method", func(ctx context.Context, cat *training.Catalog, id string) error {
		return cat.RemoveMethod(ctx, id)
	}))
	return cmd
}

// methodKey looks up the key of method id, so a config-only update is
// validated against the right method.
func (a *App) methodKey(ctx context.Context, id string) (string, error) {
	rt, err := a.runtime()
	if err != nil {
		return "", err
	}
	methods, err := rt.Client.ListMethods(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range methods {
		if m.ID.String() == id {
			return m.MethodKey, nil
		}
	}
	return "", usageErrorf("unknown training method %q", id)
}

// =============================================================================
// BASE MODELS
// =============================================================================

func (a *App) newTrainBaseModelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "base-model",
		Aliases: []string{"base-models"},
		Short:   "Manage base models",
	}

	var (
		add       model.BaseModel
		addSize   float64
		addRAM    float64
		addModule []string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a base model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("size") {
				add.SizeBillion = &addSize
			}
			if cmd.Flags().Changed("ram") {
				add.RecommendedRAMGB = &addRAM
			}
			add.DefaultTargetModules = addModule
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			created, err := cat.AddBaseModel(cmd.Context(), add)
			if err != nil {
				return err
			}
			return a.done("train base-model add", created, "Created base model %s (%s)", created.ModelName, created.ID)
		},
	}
	addCmd.Flags().StringVar(&add.ModelName, "name", "", "model name, e.g. TinyLlama/TinyLlama-1.1B-Chat-v1.0")
	addCmd.Flags().StringVar(&add.DisplayName, "display-name", "", "display name")
	addCmd.Flags().Float64Var(&addSize, "size", 0, "parameter count in billions")
	addCmd.Flags().Float64Var(&addRAM, "ram", 0, "recommended RAM in GB")
	addCmd.Flags().StringSliceVar(&addModule, "modules", nil, "default target modules, comma separated")

	var (
		upd       model.BaseModel
		updSize   float64
		updRAM    float64
		updActive bool
	)
	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a base model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPatch(cmd.Flags())
			p.str("name", "model_name", upd.ModelName)
			p.str("display-name", "display_name", upd.DisplayName)
			p.number("size", "size_billion", updSize)
			p.number("ram", "recommended_ram_gb", updRAM)
			p.boolean("active", "is_active", updActive)
			patch, err := p.result()
			if err != nil {
				return err
			}
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			updated, err := cat.UpdateBaseModel(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return a.done("train base-model update", updated, "Updated base model %s", args[0])
		},
	}
	updateCmd.Flags().StringVar(&upd.ModelName, "name", "", "model name")
	updateCmd.Flags().StringVar(&upd.DisplayName, "display-name", "", "display name")
	updateCmd.Flags().Float64Var(&updSize, "size", 0, "parameter count in billions")
	updateCmd.Flags().Float64Var(&updRAM, "ram", 0, "recommended RAM in GB")
	updateCmd.Flags().BoolVar(&updActive, "active", true, "whether the model can be used")

	cmd.AddCommand(addCmd, updateCmd, a.removeCommand("base model", func(ctx context.Context, cat *training.Catalog, id string) error {
		return cat.RemoveBaseModel(ctx, id)
	}))
	return cmd
}

// =============================================================================
// TARGETS
// =============================================================================

func (a *App) newTrainTargetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "target",
		Aliases: []string{"targets"},
		Short:   "Manage deployment targets",
	}

	var add model.DeploymentTarget
	var addConfig string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a deployment target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := training.ParseConfig(addConfig)
			if err != nil {
				return err
			}
			add.Config = cfg
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			created, err := cat.AddTarget(cmd.Context(), add)
			if err != nil {
				return err
			}
			return a.done("train target add", created, "Created target %s (%s)", created.TargetKey, created.ID)
		},
	}
	addCmd.Flags().StringVar(&add.Name, "name", "", "display name")
	addCmd.Flags().StringVar(&add.TargetKey, "key", "", "target key, e.g. ollama")
	addCmd.Flags().StringVar(&addConfig, "config", "", "target config as a JSON object")

	var (
		upd       model.DeploymentTarget
		updConfig string
		updActive bool
	)
	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a deployment target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPatch(cmd.Flags())
			p.str("name", "name", upd.Name)
			p.str("key", "target_key", upd.TargetKey)
			p.json("config", "config", updConfig)
			p.boolean("active", "is_active", updActive)
			patch, err := p.result()
			if err != nil {
				return err
			}
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			key := upd.TargetKey
			if key == "" {
				key, err = a.targetKey(cmd.Context(), args[0])
				if err != nil {
					return err
				}
			}
			updated, err := cat.UpdateTarget(cmd.Context(), args[0], key, patch)
			if err != nil {
				return err
			}
			return a.done("train target update", updated, "Updated target %s", args[0])
		},
	}
	updateCmd.Flags().StringVar(&upd.Name, "name", "", "display name")
	updateCmd.Flags().StringVar(&upd.TargetKey, "key", "", "target key")
	updateCmd.Flags().StringVar(&updConfig, "config", "", "target config as a JSON object")
	updateCmd.Flags().BoolVar(&updActive, "active", true, "whether the target can be used")

	cmd.AddCommand(addCmd, updateCmd, a.removeCommand("target", func(ctx context.Context, cat *training.Catalog, id string) error {
		return cat.RemoveTarget(ctx, id)
	}))
	return cmd
}

func (a *App) targetKey(ctx context.Context, id string) (string, error) {
	rt, err := a.runtime()
	if err != nil {
		return "", err
	}
	targets, err := rt.Client.ListTargets(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.ID.String() == id {
			return t.TargetKey, nil
		}
	}
	return "", usageErrorf("unknown deployment target %q", id)
}
