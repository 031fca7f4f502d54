package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ymiyake/contractintake"
	"github.com/ymiyake/contractintake/auth"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	secretsPath := flag.String("secrets", "secrets.yaml", "Path to secrets file (YAML)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := contractintake.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	secrets, err := contractintake.LoadSecrets(*secretsPath)
	if err != nil {
		slog.Error("loading secrets", "error", err)
		os.Exit(1)
	}
	if err := cfg.Apply(secrets); err != nil {
		slog.Error("applying secrets", "error", err)
		os.Exit(1)
	}

	// Environment overrides.
	if v := os.Getenv("CONTRACTINTAKE_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("CONTRACTINTAKE_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("CONTRACTINTAKE_WATCH_DIR"); v != "" {
		cfg.WatchDir = v
	}

	engine, err := contractintake.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", h.handleStartSession)
	mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/extract", h.handleExtract)
	mux.HandleFunc("POST /sessions/{id}/upload", h.handleUpload)
	mux.HandleFunc("POST /sessions/{id}/answers", h.handleAnswers)
	mux.HandleFunc("POST /sessions/{id}/apply", h.handleApply)
	mux.HandleFunc("POST /sessions/{id}/fields", h.handleSetField)
	mux.HandleFunc("POST /sessions/{id}/export", h.handleExport)
	mux.HandleFunc("GET /history", h.handleHistory)
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	// Middleware chain: recovery -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = auth.Middleware(cfg.Auth, handler)
	handler = recoveryMiddleware(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WatchDir != "" {
		watcher, err := newIntakeWatcher(engine, cfg.WatchDir)
		if err != nil {
			slog.Error("starting intake watcher", "dir", cfg.WatchDir, "error", err)
			os.Exit(1)
		}
		go watcher.run(ctx)
		defer watcher.close()
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // extraction calls can be slow
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
