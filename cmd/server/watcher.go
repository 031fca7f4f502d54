package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/ymiyake/contractintake"
	"github.com/ymiyake/contractintake/loader"
)

// intakeWatcher watches a drop directory for meeting-note files and
// starts an extraction session for each new or modified file.
type intakeWatcher struct {
	engine  contractintake.Engine
	watcher *fsnotify.Watcher
	exts    map[string]bool
}

func newIntakeWatcher(engine contractintake.Engine, dir string) (*intakeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	exts := make(map[string]bool)
	for _, ext := range loader.SupportedExtensions() {
		exts[ext] = true
	}

	return &intakeWatcher{
		engine:  engine,
		watcher: watcher,
		exts:    exts,
	}, nil
}

func (iw *intakeWatcher) run(ctx context.Context) {
	slog.Info("intake watcher started")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !iw.exts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			iw.ingest(ctx, event.Name)
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (iw *intakeWatcher) ingest(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("reading dropped file", "path", path, "error", err)
		return
	}

	text, err := iw.engine.LoadFile(data, filepath.Base(path))
	if err != nil {
		slog.Error("loading dropped file", "path", path, "error", err)
		return
	}

	view := iw.engine.StartSession()
	view, err = iw.engine.Extract(ctx, view.ID, text)
	if err != nil {
		slog.Error("extracting dropped file", "path", path, "error", err)
		return
	}
	slog.Info("ingested dropped file",
		"path", path,
		"session", view.ID,
		"missing", len(view.MissingFields),
		"questions", len(view.Questions),
	)
}

func (iw *intakeWatcher) close() {
	iw.watcher.Close()
}
