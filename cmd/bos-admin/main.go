package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/cli"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/config"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(observability.WarnLevel, os.Stderr)

	env := &cli.Env{
		Open: func(ctx context.Context) (*sql.DB, error) {
			connCfg := postgres.ConfigFromStorage(cfg.Storage)
			connCfg.ReplicaURLs = nil
			cm, err := postgres.NewConnectionManager(ctx, connCfg, logger)
			if err != nil {
				return nil, err
			}
			return cm.Primary(), nil
		},
		Out:      os.Stdout,
		TokenTTL: cfg.Auth.TokenTTL,
	}

	rootCmd := cli.NewRootCommand(env)
	if err := rootCmd.Execute(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
