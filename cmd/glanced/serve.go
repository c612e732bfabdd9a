package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.aimuz.me/glance/config"
	"go.aimuz.me/glance/hotkey"
	"go.aimuz.me/glance/internal/app"
	"go.aimuz.me/glance/internal/bridge"
)

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := cfg.ActiveBackend(); err != nil {
		return err
	}
	listen := addr
	if listen == "" {
		listen = cfg.Addr()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := app.NewController(cfg, cfg.ActiveBackend)
	defer ctrl.Stop()

	var keys hotkey.Manager
	if err := keys.Start(app.HotkeyBindings(ctrl, ctrl.Toggle, cfg.Hotkeys, nil)); err != nil {
		slog.Warn("hotkeys unavailable", "error", err)
	}
	defer keys.Stop()

	srv := bridge.New(ctrl, ctrl.Store())
	slog.Info("glanced started", "version", version, "addr", listen)
	err = srv.ListenAndServe(ctx, listen)
	slog.Info("glanced stopped")
	return err
}
