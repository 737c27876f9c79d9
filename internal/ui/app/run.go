// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/config"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/session"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/training"
	chatui "github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/chat"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/styles"
	trainingui "github.com/chanon-dev/knowledge-ops-poc-ai/internal/ui/training"
)

// Env is the wired runtime the TUI runs against.
type Env struct {
	Config *config.Config
	Client *api.Client
	Store  *session.Store
	Logger *zap.Logger
}

// Run starts the TUI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, env Env) error {
	logger := logging.OrNop(env.Logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Jobs start from the running program, so program is set before the
	// hook can fire.
	var program *tea.Program
	poller := training.NewPoller(env.Client, training.PollerOptions{
		Interval: env.Config.PollInterval(),
		Logger:   logger,
		OnCompleted: reloadModelsHook(env.Client, logger, func(msg tea.Msg) {
			if program != nil {
				program.Send(msg)
			}
		}),
	})
	defer poller.Close()

	var md *chatui.Markdown
	if env.Config.UI.Markdown {
		md = chatui.NewMarkdown(env.Config.UI.Theme)
	}

	_, err := env.Store.Load()
	authenticated := err == nil

	root := New(ctx, Deps{
		Backend:      env.Client,
		Store:        env.Store,
		Poller:       poller,
		Theme:        styles.NewTheme(env.Config.UI.Theme),
		Markdown:     md,
		Logger:       logger,
		ServerURL:    env.Config.API.URL,
		Department:   env.Config.UI.DefaultDepartment,
		HistoryLimit: env.Config.API.HistoryLimit,
	}, authenticated)

	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx))
	program = p

	env.Client.SetOnUnauthorized(func() {
		p.Send(UnauthorizedMsg{})
	})
	defer env.Client.SetOnUnauthorized(nil)

	err = session.Watch(ctx, env.Store.Path(), logger, func(c session.Change) {
		// Whatever changed, the cached token no longer describes the file.
		env.Client.Logout()
		p.Send(SessionMsg{Change: c})
	})
	if err != nil {
		logger.Warn("session watcher unavailable", zap.Error(err))
	}

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// reloadModelsHook reloads the trained model list when a job completes and
// sends it to the training screen.
func reloadModelsHook(lister training.ModelLister, logger *zap.Logger, send func(tea.Msg)) func(context.Context, model.TrainingJob) {
	return training.ReloadModels(lister, logger, func(r training.ModelsReload) {
		send(trainingui.ModelsMsg{Models: r.Models, Err: r.Err})
	})
}
