package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ErgoTechKG/wechat-cc/internal/config"
	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/executor"
	"github.com/ErgoTechKG/wechat-cc/internal/router"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/transport"
	"github.com/ErgoTechKG/wechat-cc/internal/workspace"
)

// app holds the long-lived components shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	docker   *docker.Manager
	ws       *workspace.Manager
	executor *executor.Executor
	router   *router.Router

	closers []io.Closer
}

func wireApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg}
	logger, logFile, err := newLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	if logFile != nil {
		a.closers = append(a.closers, logFile)
	}

	if cfg.AdminID == "" {
		logger.Warn("admin_id is not set, admin commands are unavailable")
	}

	st, err := store.New(cfg.DBPath, 0)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st)

	engine, err := docker.NewEngine()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ws = workspace.NewManager(cfg.Docker.DataDir)
	a.docker = docker.NewManager(engine, cfg, a.ws, logger)
	a.closers = append(a.closers, a.docker)

	a.executor = executor.New(a.docker, st, cfg, logger)
	a.router = router.New(st, a.executor, cfg, logger)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// handle adapts the router to the transport's Handler.
func (a *app) handle(ctx context.Context, m transport.Message) (string, bool) {
	return a.router.Handle(ctx, router.Contact(m.From), m.Text)
}

func newTransport(cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "", "stdin":
		return transport.NewStdin(os.Stdin, os.Stdout, logger), nil
	case "telegram":
		if cfg.Transport.Telegram.Token == "" {
			return nil, fmt.Errorf("%w: transport.telegram.token is required", config.ErrInvalid)
		}
		return transport.NewTelegram(cfg.Transport.Telegram, logger), nil
	}
	return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalid, cfg.Transport.Kind)
}

// newLogger builds the process logger from the logging section. When a log
// file is configured, output goes to both stdout and the file, and the file
// is returned for closing.
func newLogger(lc config.LoggingConfig, stdout io.Writer) (*slog.Logger, *os.File, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, nil, fmt.Errorf("%w: logging.level %q", config.ErrInvalid, lc.Level)
	}

	out := stdout
	var file *os.File
	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		out = io.MultiWriter(stdout, f)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(lc.Format) {
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(h), file, nil
}
