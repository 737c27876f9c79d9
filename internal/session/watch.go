// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
)

// Change describes what happened to the session file.
type Change int

const (
	// Written means a login replaced the file.
	Written Change = iota
	// Removed means a logout deleted the file.
	Removed
)

func (c Change) String() string {
	if c == Removed {
		return "removed"
	}
	return "written"
}

// Watch calls fn whenever the session file at path is written or removed,
// until ctx is cancelled. The parent directory is watched rather than the
// file itself because saves replace the file by rename.
func Watch(ctx context.Context, path string, logger *zap.Logger, fn func(Change)) error {
	logger = logging.OrNop(logger).Named("session.watch")

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				switch {
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					logger.Debug("session file removed")
					fn(Removed)
				case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
					logger.Debug("session file written")
					fn(Written)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("session watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
