package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/docuflow/docuflow/internal/approval"
	"github.com/docuflow/docuflow/internal/docs"
	"github.com/docuflow/docuflow/internal/engine"
	"github.com/docuflow/docuflow/internal/logging"
	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/internal/notify"
	"github.com/docuflow/docuflow/internal/scheduler"
	"github.com/docuflow/docuflow/internal/store"
	"github.com/docuflow/docuflow/internal/validation"
	"github.com/docuflow/docuflow/internal/web"
	"github.com/docuflow/docuflow/pkg/mcp"
)

func main() {
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	flag.Parse()

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *mcpMode); err != nil {
		logger.Error("docuflow exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger, mcpMode bool) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	directory := docs.NewMemoryDirectory()

	var mailer nodes.Mailer
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTP)
	} else {
		logger.Warn("no SMTP relay configured, mail goes to the log")
		mailer = &notify.LogMailer{Logger: logger}
	}

	approvals := approval.NewService(st, mailer, cfg.BaseURL, logger)

	registry := nodes.NewRegistry()
	if err := nodes.RegisterBuiltins(registry, nodes.Deps{
		Issuer:    approvals,
		Mailer:    mailer,
		NotifyLog: notify.NewEventNotifyLog(st),
		Directory: directory,
	}); err != nil {
		return err
	}

	eng := engine.New(st, registry, directory, logger, engine.Config{MaxSteps: cfg.MaxSteps})
	approvals.Bind(eng)

	validator, err := validation.New(registry)
	if err != nil {
		return err
	}

	if mcpMode {
		logger.Info("serving MCP tools on stdio")
		return mcp.NewServer(mcp.ServerDeps{
			Engine:   eng,
			Approval: approvals,
			Store:    st,
			Logger:   logger,
		}).Serve(ctx)
	}

	sweeper, err := scheduler.New(eng, cfg.SweepSchedule, logger)
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: web.NewServer(web.Deps{
			Store:     st,
			Engine:    eng,
			Approval:  approvals,
			Validator: validator,
			Registry:  registry,
			Documents: directory,
			Logger:    logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docuflow listening", slog.String("addr", cfg.ListenAddr), slog.String("base_url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(handler))
	slog.SetDefault(logger)
	return logger
}
