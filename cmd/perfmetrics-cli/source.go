package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"perfmetrics/internal/api"
	"perfmetrics/internal/app"
	"perfmetrics/internal/config"
	"perfmetrics/internal/util"
	"perfmetrics/pkg/perfmetrics"
)

// globals are the flags shared by every subcommand.
type globals struct {
	server     string
	configPath string
	json       bool
}

// source serves metrics either from a local engine or a remote server.
type source interface {
	GetMetrics(ctx context.Context, symbol string, withBars bool) (*perfmetrics.Metrics, error)
	Refresh(ctx context.Context, symbols []string) (*perfmetrics.RefreshResponse, error)
	io.Closer
}

func (g *globals) open(ctx context.Context) (source, error) {
	if g.server != "" {
		return remoteSource{perfmetrics.NewClient(g.server)}, nil
	}

	path := g.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Keep stdout for results; warnings go to stderr.
	log := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, "text")
	slog.SetDefault(log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return localSource{a}, nil
}

type remoteSource struct {
	*perfmetrics.Client
}

func (remoteSource) Close() error { return nil }

type localSource struct {
	app *app.App
}

func (l localSource) GetMetrics(ctx context.Context, symbol string, withBars bool) (*perfmetrics.Metrics, error) {
	entry, err := l.app.Engine.GetMetrics(ctx, symbol)
	if err != nil {
		return nil, err
	}
	m := api.ToMetrics(entry, withBars)
	return &m, nil
}

func (l localSource) Refresh(ctx context.Context, symbols []string) (*perfmetrics.RefreshResponse, error) {
	resp := api.ToRefreshResponse(l.app.Engine.RefreshAll(ctx, symbols))
	return &resp, nil
}

func (l localSource) Close() error { return l.app.Close() }
