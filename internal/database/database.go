package database

import (
	"context"
	"fmt"
	"log"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/config"
)

// New builds the store selected by cfg.StoreDriver. The caller owns the
// returned store and must Close it on shutdown.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		client, err := NewDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		store := NewDynamoStore(client, cfg.Stage)
		if cfg.DynamoDB.CreateTables {
			if err := store.EnsureTables(ctx); err != nil {
				return nil, err
			}
		}
		log.Printf("✅ DynamoDB store ready (stage %s)", cfg.Stage)
		return store, nil
	case config.DriverPostgres:
		return NewPostgresStore(cfg.Postgres.DSN())
	case config.DriverMemory:
		log.Println("⚠️  Using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}
