package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"imageorganizer/internal/executor"
	"imageorganizer/internal/ledger"
	"imageorganizer/internal/models"
	"imageorganizer/internal/source/remote"
	"imageorganizer/internal/storage"
)

// openCatalog opens the scan catalog database at the configured path.
func openCatalog() (*storage.Storage, error) {
	st, err := storage.NewStorage(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return st, nil
}

// remoteClient builds the remote store client from configuration. It
// fails when no base URL is configured so commands that need the remote
// side give a clear error instead of dialing nowhere.
func remoteClient() (*remote.Client, error) {
	if cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote store not configured: set remote.base_url in the config file")
	}

	opts := []remote.Option{
		remote.WithPageSize(cfg.Remote.PageSize),
		remote.WithRateLimit(cfg.Remote.RatePerSecond, cfg.Remote.RateBurst),
	}
	policy := remote.DefaultRetryPolicy()
	if cfg.Remote.RetryAttempts > 0 {
		policy.MaxAttempts = cfg.Remote.RetryAttempts
	}
	if cfg.Remote.RetryBaseDelay > 0 {
		policy.InitialDelay = cfg.Remote.RetryBaseDelay
	}
	if cfg.Remote.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.Remote.RetryMaxDelay
	}
	opts = append(opts, remote.WithRetryPolicy(policy))

	return remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, opts...), nil
}

// newLedger assembles the staging ledger from configuration. The remote
// stager is wired only when a remote store is configured; staging a
// remote record without one fails with a clear error. Incomplete staged
// moves left by an earlier crash are re-attempted before the ledger is
// handed to the caller.
func newLedger(ctx context.Context) (*ledger.Ledger, *ledger.SQLiteStore, error) {
	store, err := ledger.NewSQLiteStore(cfg.Staging.LedgerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	opts := []ledger.Option{
		ledger.WithStager(models.OriginLocal, ledger.NewLocalStager(cfg.Staging.Dir)),
		ledger.WithProtected(cfg.Scopes()),
	}

	if cfg.Remote.BaseURL != "" {
		client, err := remoteClient()
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		opts = append(opts,
			ledger.WithStager(models.OriginRemote, ledger.NewRemoteStager(client)),
			ledger.WithExecutor(executor.New(client)),
		)
	} else {
		opts = append(opts, ledger.WithExecutor(executor.New(nil)))
	}

	l := ledger.New(store, opts...)

	restaged, err := l.Recover(ctx)
	if err != nil {
		log.Warnf("ledger recovery incomplete: %v", err)
	}
	for _, id := range restaged {
		log.Infof("re-staged incomplete operation %s", id)
	}

	return l, store, nil
}

// formatSize formats a byte count in human-readable form.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
