// Package store opens the configured persistence backend.
package store

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/ariefcatur/go-realtime-checkout/internal/mongostore"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/postgres"
	"go.uber.org/zap"
)

// Open connects to the backend named by cfg.StoreBackend, prepares its
// schema and returns the store with a matching close function.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (orders.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Info("store ready", zap.String("backend", "postgres"))
		return &postgres.Store{DB: pool}, pool.Close, nil

	case "mongo":
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		s := mongostore.New(client, cfg.MongoDB)
		if err := mongostore.EnsureIndexes(ctx, s.DB); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		log.Info("store ready", zap.String("backend", "mongo"), zap.String("db", cfg.MongoDB))
		return s, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongo disconnect", zap.Error(err))
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
