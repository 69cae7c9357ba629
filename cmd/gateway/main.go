package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/scheduler"
	"github.com/mind-engage/mindengage-assess/internal/storage"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return err
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	bs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.MaxUploadSize, "/api/assets/")
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log, dbh, bs)
	if err != nil {
		return err
	}
	if err := a.users.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		return err
	}

	// --- Background jobs ---
	sched := scheduler.New(log)
	if cfg.EnableLateSweep {
		if err := sched.Add("late-sweep", cfg.LateSweepSpec, a.submissions.SweepLate); err != nil {
			return err
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, release := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer release()

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", driver, "late_sweep", cfg.EnableLateSweep)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stop.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	sched.Stop(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
