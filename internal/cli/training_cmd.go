// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/training"
)

func (a *App) newTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "train",
		Aliases: []string{"training"},
		Short:   "Fine-tune models and manage the training catalog",
	}
	cmd.AddCommand(
		a.newTrainStartCommand(),
		a.newTrainStatusCommand(),
		a.newTrainJobsCommand(),
		a.newTrainCatalogCommand(),
		a.newTrainQuickSetupCommand(),
		a.newTrainMethodCommand(),
		a.newTrainBaseModelCommand(),
		a.newTrainTargetCommand(),
	)
	return cmd
}

// =============================================================================
// JOBS
// =============================================================================

// TrainStartFlags are the flags of kops train start.
type TrainStartFlags struct {
	Method       string
	MethodID     string
	BaseModel    string
	BaseModelID  string
	TargetID     string
	TargetKey    string
	TargetConfig string
	Config       string
	Watch        bool
}

// BindFlags registers the flags on fs.
func (f *TrainStartFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Method, "method", "m", training.MethodLoRA, "training method key")
	fs.StringVar(&f.MethodID, "method-id", "", "training method catalog id")
	fs.StringVarP(&f.BaseModel, "base-model", "b", "", "base model name, e.g. TinyLlama/TinyLlama-1.1B-Chat-v1.0")
	fs.StringVar(&f.BaseModelID, "base-model-id", "", "base model catalog id (instead of --base-model)")
	fs.StringVar(&f.TargetID, "target-id", "", "deployment target catalog id")
	fs.StringVar(&f.TargetKey, "target-key", "", "deployment target key, enables target config checks")
	fs.StringVar(&f.TargetConfig, "target-config", "", "deployment target config as a JSON object")
	fs.StringVarP(&f.Config, "config", "c", "", "method config overrides as a JSON object")
	fs.BoolVarP(&f.Watch, "watch", "w", false, "follow the job until it finishes")
}

// Request builds and validates the train request.
func (f *TrainStartFlags) Request() (model.TrainRequest, error) {
	overrides, err := training.ParseConfig(f.Config)
	if err != nil {
		return model.TrainRequest{}, err
	}
	targetCfg, err := training.ParseConfig(f.TargetConfig)
	if err != nil {
		return model.TrainRequest{}, err
	}
	req := model.TrainRequest{
		MethodKey:          strings.TrimSpace(f.Method),
		MethodID:           f.MethodID,
		BaseModelID:        f.BaseModelID,
		BaseModelName:      strings.TrimSpace(f.BaseModel),
		DeploymentTargetID: f.TargetID,
		ConfigOverrides:    overrides,
		TargetKey:          f.TargetKey,
		TargetConfig:       targetCfg,
	}
	return req, training.ValidateRequest(req)
}

func (a *App) newTrainStartCommand() *cobra.Command {
	f := &TrainStartFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a fine-tuning job",
		Example: `  kops train start --base-model TinyLlama/TinyLlama-1.1B-Chat-v1.0 --watch
  kops train start -m lora -b mistralai/Mistral-7B-v0.1 -c '{"lora_r": 32}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.Request()
			if err != nil {
				return err
			}
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if f.Watch {
				job, err := a.watchJob(ctx, rt, func(p *training.Poller) error {
					return p.Start(ctx, req)
				})
				if err != nil {
					return err
				}
				return a.finishJob("train start", job)
			}

			resp, err := rt.Client.StartTraining(ctx, req)
			if err != nil {
				return err
			}
			return a.emit("train start", resp, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Started training job"), resp.JobID)
				fmt.Fprintln(w, DimStyle.Render("Follow it with: kops train status "+resp.JobID+" --watch"))
			})
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

func (a *App) newTrainStatusCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a training job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			jobID := args[0]
			if watch {
				job, err := a.watchJob(cmd.Context(), rt, func(p *training.Poller) error {
					return p.Follow(jobID)
				})
				if err != nil {
					return err
				}
				return a.finishJob("train status", job)
			}
			job, err := rt.Client.TrainingStatus(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			if job.ID == "" {
				job.ID = jobID
			}
			return a.emit("train status", job, func(w io.Writer) {
				printJob(w, *job)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow the job until it finishes")
	return cmd
}

// watchedJob is a finished job together with the trained model list
// reloaded when it completed.
type watchedJob struct {
	model.TrainingJob
	TrainedModels []model.TrainedModel `json:"trained_models,omitempty"`
}

// watchJob runs start on a fresh poller and prints every change until the
// job is terminal. A completed job also reloads the trained model list.
func (a *App) watchJob(ctx context.Context, rt *Runtime, start func(*training.Poller) error) (watchedJob, error) {
	reloaded := make(chan training.ModelsReload, 1)
	poller := training.NewPoller(rt.Client, training.PollerOptions{
		Interval: rt.Config.PollInterval(),
		Clock:    a.clock,
		Logger:   rt.Logger,
		OnCompleted: training.ReloadModels(rt.Client, rt.Logger, func(r training.ModelsReload) {
			reloaded <- r
		}),
	})
	defer poller.Close()

	if err := start(poller); err != nil {
		return watchedJob{TrainingJob: poller.Snapshot()}, err
	}

	var last model.TrainingJob
	for {
		select {
		case <-ctx.Done():
			return watchedJob{TrainingJob: last}, ctx.Err()
		case job, ok := <-poller.Updates():
			if !ok {
				return watchedJob{TrainingJob: last}, nil
			}
			if !a.flags.JSON && jobChanged(last, job) {
				fmt.Fprintln(a.streams.Out, progressLine(job))
			}
			last = job
			if !job.Status.IsTerminal() {
				continue
			}
			out := watchedJob{TrainingJob: job}
			if job.Status != model.JobCompleted {
				return out, nil
			}
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case r := <-reloaded:
				if r.Err != nil {
					fmt.Fprintln(a.streams.Err, WarningStyle.Render("Could not reload trained models: "+detail(r.Err)))
				}
				out.TrainedModels = r.Models
				return out, nil
			}
		}
	}
}

// finishJob prints the final state of a watched job. A failed job is an
// error.
func (a *App) finishJob(command string, res watchedJob) error {
	job := res.TrainingJob
	err := a.emit(command, res, func(w io.Writer) {
		if job.Status == model.JobCompleted {
			fmt.Fprintln(w, SuccessStyle.Render("Training completed"))
			if job.ModelName != "" {
				field(w, "Model", job.ModelName)
			}
			if job.DeployedTo != "" {
				field(w, "Deployed to", job.DeployedTo)
			}
			printMetrics(w, job.Metrics)
			if len(res.TrainedModels) > 0 {
				fmt.Fprintln(w)
				fmt.Fprintln(w, TitleStyle.Render("Trained models"))
				printTrainedModels(w, res.TrainedModels)
			}
		}
	})
	if err != nil {
		return err
	}
	if job.Status == model.JobFailed {
		return fmt.Errorf("training job %s failed: %s", valueOr(job.ID, "(not started)"), valueOr(job.Error, "unknown error"))
	}
	return nil
}

func jobChanged(prev, next model.TrainingJob) bool {
	return prev.Status != next.Status || prev.Progress != next.Progress || prev.StatusMessage != next.StatusMessage
}

// progressLine renders "[running] ######----  60% epoch 2/3".
func progressLine(job model.TrainingJob) string {
	const width = 20
	filled := job.Progress * width / 100
	filled = min(max(filled, 0), width)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	line := fmt.Sprintf("[%s] %s %3d%%", job.Status, bar, job.Progress)
	if job.StatusMessage != "" {
		line += " " + job.StatusMessage
	}
	if job.Error != "" {
		line += " " + ErrorStyle.Render(job.Error)
	}
	return line
}

func printJob(w io.Writer, job model.TrainingJob) {
	field(w, "Job", job.ID)
	field(w, "Status", job.Status)
	field(w, "Progress", fmt.Sprintf("%d%%", job.Progress))
	if job.StatusMessage != "" {
		field(w, "Message", job.StatusMessage)
	}
	if job.MethodKey != "" {
		field(w, "Method", job.MethodKey)
	}
	if job.BaseModelName != "" {
		field(w, "Base model", job.BaseModelName)
	}
	if job.ModelName != "" {
		field(w, "Model", job.ModelName)
	}
	if job.Error != "" {
		field(w, "Error", ErrorStyle.Render(job.Error))
	}
	printMetrics(w, job.Metrics)
}

func printMetrics(w io.Writer, metrics map[string]any) {
	for _, k := range sortedKeys(metrics) {
		field(w, k, metrics[k])
	}
}

func (a *App) newTrainJobsCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List training jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			jobs, err := rt.Client.ListTrainingJobs(cmd.Context(), model.JobStatus(status))
			if err != nil {
				return err
			}
			return a.emit("train jobs", jobs, func(w io.Writer) {
				if len(jobs) == 0 {
					fmt.Fprintln(w, DimStyle.Render("No training jobs."))
					return
				}
				rows := make([][]string, len(jobs))
				for i, j := range jobs {
					rows[i] = []string{j.ID, string(j.Status), fmt.Sprintf("%d%%", j.Progress), valueOr(j.MethodKey, "-"), valueOr(j.BaseModelName, "-")}
				}
				table(w, []Column{{Title: "ID"}, {Title: "STATUS"}, {Title: "PROGRESS"}, {Title: "METHOD"}, {Title: "BASE MODEL", Width: 48}}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (queued, running, completed, failed)")
	return cmd
}

func (a *App) newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List trained models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			models, err := rt.Client.ListTrainedModels(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit("models", models, func(w io.Writer) {
				if len(models) == 0 {
					fmt.Fprintln(w, DimStyle.Render("No trained models yet. Start one with: kops train start"))
					return
				}
				printTrainedModels(w, models)
			})
		},
	}
}

func printTrainedModels(w io.Writer, models []model.TrainedModel) {
	rows := make([][]string, len(models))
	for i, m := range models {
		rows[i] = []string{m.ID.String(), m.Name, m.BaseModel, m.Status, m.CreatedAt}
	}
	table(w, []Column{{Title: "ID"}, {Title: "NAME"}, {Title: "BASE MODEL"}, {Title: "STATUS"}, {Title: "CREATED"}}, rows)
}

// =============================================================================
// CATALOG
// =============================================================================

func (a *App) catalog() (*training.Catalog, error) {
	rt, err := a.runtime()
	if err != nil {
		return nil, err
	}
	return training.NewCatalog(rt.Client, rt.Logger), nil
}

func (a *App) newTrainCatalogCommand() *cobra.Command {
	var configs bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show training methods, base models, deployment targets and the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			contents, err := cat.Load(cmd.Context())
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return NewJSONResponse("train catalog", contents).Print(a.streams.Out)
			}
			return a.printCatalog(contents, configs)
		},
	}
	cmd.Flags().BoolVar(&configs, "configs", false, "print the default and target configs")
	return cmd
}

func (a *App) printCatalog(c *training.Contents, configs bool) error {
	w := a.streams.Out

	fmt.Fprintln(w, TitleStyle.Render("Training methods"))
	rows := make([][]string, len(c.Methods))
	for i, m := range c.Methods {
		rows[i] = []string{m.ID.String(), m.MethodKey, m.Name, activeLabel(m.IsActive)}
	}
	table(w, []Column{{Title: "ID"}, {Title: "KEY"}, {Title: "NAME"}, {Title: "ACTIVE"}}, rows)
	if configs {
		for _, m := range c.Methods {
			fmt.Fprintln(w, DimStyle.Render(m.MethodKey+" default config:"))
			if err := a.printJSON(m.DefaultConfig); err != nil {
				return err
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Base models"))
	rows = make([][]string, len(c.BaseModels))
	for i, m := range c.BaseModels {
		size := "-"
		if m.SizeBillion != nil {
			size = fmt.Sprintf("%.1fB", *m.SizeBillion)
		}
		rows[i] = []string{m.ID.String(), m.ModelName, m.DisplayName, size, activeLabel(m.IsActive)}
	}
	table(w, []Column{{Title: "ID"}, {Title: "MODEL"}, {Title: "DISPLAY NAME"}, {Title: "SIZE"}, {Title: "ACTIVE"}}, rows)

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Deployment targets"))
	rows = make([][]string, len(c.Targets))
	for i, t := range c.Targets {
		rows[i] = []string{t.ID.String(), t.TargetKey, t.Name, activeLabel(t.IsActive)}
	}
	table(w, []Column{{Title: "ID"}, {Title: "KEY"}, {Title: "NAME"}, {Title: "ACTIVE"}}, rows)
	if configs {
		for _, t := range c.Targets {
			fmt.Fprintln(w, DimStyle.Render(t.TargetKey+" config:"))
			if err := a.printJSON(t.Config); err != nil {
				return err
			}
		}
	}

	fmt.Fprintln(w)
	field(w, "Trainers", valueOr(strings.Join(c.Registry.Trainers, ", "), "-"))
	field(w, "Deployers", valueOr(strings.Join(c.Registry.Deployers, ", "), "-"))
	return nil
}

func activeLabel(active *bool) string {
	if active != nil && !*active {
		return "no"
	}
	return "yes"
}

func (a *App) newTrainQuickSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quick-setup",
		Short: "Create a default LoRA method, TinyLlama base model and local Ollama target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			res := cat.QuickSetup(cmd.Context())

			failed := map[string]string{}
			for item, err := range res.Failed {
				failed[item] = detail(err)
			}
			data := map[string]any{"created": res.Created, "failed": failed}
			err = a.emit("train quick-setup", data, func(w io.Writer) {
				if len(failed) == 0 {
					fmt.Fprintln(w, SuccessStyle.Render(res.String()))
					return
				}
				fmt.Fprintln(w, WarningStyle.Render(res.String()))
				for _, item := range sortedKeys(failed) {
					fmt.Fprintf(w, "  %s: %s\n", item, failed[item])
				}
			})
			if err != nil {
				return err
			}
			if res.Created == 0 && res.Err != nil {
				return fmt.Errorf("quick setup created nothing: %w", res.Err)
			}
			return nil
		},
	}
}
