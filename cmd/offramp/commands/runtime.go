// Package commands contains the offramp CLI subcommands.
package commands

import (
	"database/sql"
	"fmt"

	"github.com/teranos/offramp/config"
	"github.com/teranos/offramp/credentials"
	"github.com/teranos/offramp/db"
	"github.com/teranos/offramp/directory"
	"github.com/teranos/offramp/internal/httpclient"
	"github.com/teranos/offramp/lifecycle"
	"github.com/teranos/offramp/logger"
)

// openDatabase loads config, opens the SQLite database, and applies pending
// migrations.
func openDatabase() (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	conn, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Migrate(conn, logger.Logger); err != nil {
		conn.Close()
		return nil, nil, err
	}

	return conn, cfg, nil
}

// buildScanner wires the full execution pipeline: session store, key
// provider, credential resolver, token source, directory client, executor,
// and the stores the scanner writes to.
func buildScanner(conn *sql.DB, cfg *config.Config) (*lifecycle.Scanner, error) {
	keys, err := credentials.NewEnclaveKeyProviderHex(cfg.Vault.Key)
	if err != nil {
		return nil, fmt.Errorf("vault key: %w", err)
	}

	sessions := credentials.NewSessionStore(conn)
	resolver := credentials.NewResolver(sessions, keys)

	httpClient := httpclient.New(cfg.Directory.Timeout())
	tokens := directory.NewTokenSource(cfg.Directory.Authority, cfg.Directory.Scope, httpClient.Client)
	client := directory.NewClient(cfg.Directory.BaseURL, httpClient.Client, cfg.Directory.RequestsPerSecond, logger.Logger)

	executor := lifecycle.NewExecutor(client, logger.Logger)

	scannerCfg := lifecycle.ScannerConfig{
		Interval:   cfg.Scheduler.Interval(),
		BatchSize:  cfg.Scheduler.BatchSize,
		StaleAfter: cfg.Scheduler.StaleAfter(),
	}

	return lifecycle.NewScanner(
		lifecycle.NewStore(conn),
		lifecycle.NewLogStore(conn),
		lifecycle.NewAuditStore(conn),
		resolver,
		tokens,
		executor,
		scannerCfg,
		logger.Logger,
	), nil
}
