package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/librarian/internal/adapters/driven/config/file"
	"github.com/custodia-labs/librarian/internal/adapters/driving/cli"
	"github.com/custodia-labs/librarian/internal/bootstrap"
	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

var version = "dev"

func main() {
	// SIGINT is left to the commands; index turns it into a graceful stop.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)

	err := cli.Execute(ctx, cli.Wiring{
		ConfigStore: func(dir string) (driven.ConfigStore, error) {
			return file.NewConfigStore(dir)
		},
		Open: open,
	})
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func open(ctx context.Context, cfg domain.Config, resetIndex bool) (*cli.Services, error) {
	app, err := bootstrap.Open(ctx, cfg, bootstrap.Options{ResetIndex: resetIndex})
	if err != nil {
		return nil, err
	}

	return &cli.Services{
		Search:   app.Search,
		Indexing: app.Indexer,
		Library:  app.Library,
		Ask:      app.Ask,
		Watcher:  app.Watcher,
		Close:    app.Close,
	}, nil
}
