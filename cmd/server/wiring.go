package main

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"

	"gigescrow/internal/config"
	"gigescrow/internal/escrow"
	"gigescrow/internal/logger"
	"gigescrow/internal/store"
)

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
	case "redis":
		return store.NewRedisStore(ctx, cfg.RedisConfig())
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newLedger connects to algod, or falls back to the in-process fake ledger
// with a throwaway signing key when no algod URL is configured.
func newLedger(cfg *config.Config) (escrow.Ledger, escrow.Signer, error) {
	log := logger.NewSublogger("wiring")
	if cfg.Chain.AlgodURL == "" {
		signer := escrow.NewKeySigner(crypto.GenerateAccount())
		log.WithField("buyer", signer.Address()).Warn("No algod URL configured, using the fake ledger")
		return escrow.NewFakeLedger(), signer, nil
	}

	client, err := escrow.NewAlgodClient(escrow.AlgodClientConfig{
		URL:          cfg.Chain.AlgodURL,
		Token:        cfg.Chain.AlgodToken,
		IndexerURL:   cfg.Chain.IndexerURL,
		IndexerToken: cfg.Chain.IndexerToken,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("algod client: %w", err)
	}
	signer, err := escrow.NewKeySignerFromMnemonic(cfg.Chain.SignerMnemonic)
	if err != nil {
		return nil, nil, err
	}
	return client, signer, nil
}
