package main

import (
	"context"
	"os"

	"github.com/reyadatime/reyadatime/internal/app"
	"github.com/reyadatime/reyadatime/internal/cli/reyadactl"
	"github.com/reyadatime/reyadatime/internal/config"
	"github.com/reyadatime/reyadatime/internal/localstore"
	"github.com/reyadatime/reyadatime/internal/observability"
)

func main() {
	options := reyadactl.Options{
		Connect: connect,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	os.Exit(reyadactl.Run(context.Background(), os.Args[1:], options))
}

func connect(ctx context.Context) (*reyadactl.Backend, error) {
	cfg, err := config.LoadFromEnv("reyadactl")
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg, os.Stderr)
	sessions, err := localstore.NewFile(cfg.Auth.SessionDir)
	if err != nil {
		return nil, err
	}
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &reyadactl.Backend{
		Auth:    rt.NewAuth(sessions, ""),
		Catalog: rt.Catalog,
		Storage: rt.Storage,
		Close:   rt.Close,
	}, nil
}
