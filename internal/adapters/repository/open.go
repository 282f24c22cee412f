package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/surfwatch/internal/config"
)

// Open builds the store selected by cfg.StoreDriver. The result is wrapped
// with Instrument so every call is timed per backend.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverMemory, "":
		st = NewMemoryStore(opts...)
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); cfg.SQLitePath != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		st, err = OpenSQLite(ctx, cfg.SQLitePath, opts...)
	case config.DriverMongo:
		st, err = OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(st), nil
}
