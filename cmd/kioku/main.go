package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/kioku/internal/config"
	"github.com/conorfennell/kioku/internal/srs"
	"github.com/conorfennell/kioku/internal/storage"
	"github.com/conorfennell/kioku/internal/study"
	"github.com/conorfennell/kioku/internal/sync"
	"github.com/conorfennell/kioku/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "kioku:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("kioku", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	addSource := flags.String("add-source", "", "Add a new source (local path or git URL)")
	runSync := flags.Bool("sync", false, "Sync all sources before anything else")
	serve := flags.Bool("serve", false, "Start the web server")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	scheduler, err := srs.NewScheduler(cfg.SchedulerParams())
	if err != nil {
		return fmt.Errorf("invalid scheduler settings: %w", err)
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("Database opened successfully", "path", cfg.DB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *addSource != "" {
		id, err := sync.AddSource(ctx, db, *addSource)
		if err != nil {
			return fmt.Errorf("failed to add source: %w", err)
		}
		logger.Info("Source added", "id", id, "path", *addSource)
	}

	syncer := &sync.Syncer{DB: db, ReposDir: cfg.ReposDir, Logger: logger}
	if *runSync {
		if _, err := syncer.Run(ctx); err != nil {
			logger.Warn("Sync finished with errors", "error", err)
		}
	}

	if !*serve {
		if *addSource == "" && !*runSync {
			fmt.Fprintln(os.Stderr, "Nothing to do. Use --add-source, --sync or --serve.")
			flags.PrintDefaults()
		}
		return nil
	}

	svc := study.NewService(db, db, study.Options{
		Scheduler:  scheduler,
		MatureDays: cfg.MatureInterval,
		Logger:     logger,
	})
	server, err := web.NewServer(db, svc, syncer, logger)
	if err != nil {
		return err
	}
	return listen(ctx, cfg.Listen, server, logger)
}

// listen serves until ctx is cancelled, then drains in-flight requests.
func listen(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
