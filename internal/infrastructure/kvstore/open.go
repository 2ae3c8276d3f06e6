package kvstore

import (
	"context"
	"fmt"

	"github.com/pricelens/backend/internal/domain"
)

// Open returns the store selected by driver: "memory", "sqlite" or "postgres"
func Open(ctx context.Context, driver, path, dsn string) (domain.KeyValueStore, error) {
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(path)
	case "postgres":
		return OpenPostgres(ctx, dsn, 0)
	default:
		return nil, fmt.Errorf("kvstore: unknown driver %q", driver)
	}
}
