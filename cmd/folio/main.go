package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"folio/internal/config"
	"folio/internal/deploy"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configPath := flag.String("config", config.DefaultConfigPath, "path of the INI configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flag.NArg() > 0 && flag.Arg(0) == "admin" {
		return runAdmin(ctx, cfg, flag.Args()[1:])
	}
	if flag.NArg() > 0 {
		return fmt.Errorf("unknown command %q", flag.Arg(0))
	}

	a := &app{cfg: cfg}
	d, err := deploy.Run(ctx, a.units()...)
	if err != nil {
		return err
	}
	slog.Info("wiki running", "mode", cfg.Deploy.Mode, "port", cfg.HTTP.Port)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	return d.Stop(stopCtx)
}

func setupLogger(cfg config.Log) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
