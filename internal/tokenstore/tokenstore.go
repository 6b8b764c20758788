// Package tokenstore persists the single session token across restarts.
package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/estofados/storefront/internal/db"
	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/pkg/config"
	"go.opentelemetry.io/otel/metric"
)

// Store holds at most one token. Load returns "" and no error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Open builds the store selected by cfg.TokenStore. The returned closer
// releases any connection the store holds.
func Open(ctx context.Context, cfg *config.Config, m *metrics.AppMetrics, provider metric.MeterProvider) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.TokenStore {
	case "memory":
		return NewMemoryStore(), noop, nil

	case "redis":
		store, err := DialRedis(ctx, cfg.RedisURL, cfg.TokenKey, cfg.TokenTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case db.DriverSQLite, db.DriverMySQL:
		dsn := cfg.SQLitePath
		if cfg.TokenStore == db.DriverMySQL {
			dsn = cfg.GetDSN()
		}
		database, err := db.NewDB(ctx, cfg.TokenStore, dsn, provider, cfg.OTELServiceName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s token store: %w", cfg.TokenStore, err)
		}
		store := NewSQLStore(database, cfg.TokenKey, cfg.TokenTTL, m)
		if err := store.Migrate(ctx); err != nil {
			_ = database.Close()
			return nil, nil, err
		}
		slog.Info("token store ready", slog.String("driver", cfg.TokenStore))
		return store, database.Close, nil
	}

	return nil, nil, fmt.Errorf("unsupported token store %q", cfg.TokenStore)
}

// MemoryStore keeps the token for the lifetime of the process
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
