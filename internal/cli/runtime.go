// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/config"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/session"
)

// Runtime is the wired client stack a command runs against.
type Runtime struct {
	Config *config.Config
	Logger *zap.Logger
	Store  *session.Store
	Client *api.Client
}

// config loads the configuration and applies the global flag overrides.
func (a *App) config() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.flags.ConfigPath != "" {
		cfg, err = config.LoadFromPath(a.flags.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if a.flags.APIURL != "" {
		cfg.API.URL = a.flags.APIURL
	}
	if a.flags.LogLevel != "" {
		cfg.Log.Level = a.flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtime builds config, logger, session store, token cache and client
// once per process.
func (a *App) runtime() (*Runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireSecret(); err != nil {
		return nil, err
	}

	logOpts, err := logging.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	logOpts.Console = a.flags.Verbose
	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	sessionPath, err := cfg.SessionPath()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(sessionPath, cfg.Session.Secret, cfg.SessionMaxAge(), logger)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(api.NewTokenCache(store), api.Options{
		BaseURL:           cfg.API.URL,
		Timeout:           cfg.Timeout(),
		QueryTimeout:      cfg.QueryTimeout(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Logger:            logger,
		OnUnauthorized: func() {
			logger.Warn("session rejected by server")
		},
	})

	a.rt = &Runtime{Config: cfg, Logger: logger, Store: store, Client: client}
	return a.rt, nil
}

func (a *App) close() {
	if a.rt != nil {
		_ = a.rt.Logger.Sync()
	}
}
