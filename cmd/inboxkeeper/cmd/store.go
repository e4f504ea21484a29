package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/inboxkeeper/internal/core/db"
)

// connect opens the configured database, waiting for it to come up.
func connect(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL required (--db-url or database.url)")
	}
	return db.Connect(ctx, databaseURL)
}

// openStore opens the configured database and refuses to continue while
// migrations are pending.
func openStore(ctx context.Context, databaseURL string) (*db.Store, error) {
	database, err := connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, fmt.Errorf("migration %s not applied - run 'inboxkeeper migrate' first", s.ID)
		}
	}

	store, err := db.NewStore(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return store, nil
}
