package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ringwire/callflow/pkg/adapters/file"
	"github.com/ringwire/callflow/pkg/adapters/memory"
	"github.com/ringwire/callflow/pkg/adapters/redis"
	"github.com/ringwire/callflow/pkg/adapters/sqlite"
	"github.com/ringwire/callflow/pkg/persistence/middleware"
	"github.com/ringwire/callflow/pkg/ports"
)

// Storage groups the persistence ports selected by storage.driver.
// Locker is nil for single-process drivers.
type Storage struct {
	Flows  ports.FlowRepository
	Calls  ports.StateStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases connections held by the driver.
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStorage builds the repository, state store and locker for cfg.
// The state store is wrapped with redaction and encryption when configured.
func OpenStorage(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (*Storage, error) {
	mws, err := stateMiddlewares(cfg)
	if err != nil {
		return nil, err
	}
	s, err := openDriver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(mws) > 0 {
		s.Calls = middleware.Chain(s.Calls, mws...)
		logger.Debug("call state middleware enabled", "encrypted", len(cfg.EncryptionKeys) > 0, "redact", cfg.Redact)
	}
	return s, nil
}

func stateMiddlewares(cfg StorageConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		redact, err := middleware.NewRedaction(cfg.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, redact)
	}
	if len(cfg.EncryptionKeys) > 0 {
		keys := make([][]byte, len(cfg.EncryptionKeys))
		for i, k := range cfg.EncryptionKeys {
			key, err := base64.StdEncoding.DecodeString(k)
			if err != nil {
				return nil, fmt.Errorf("storage.encryption_keys[%d]: %w", i, err)
			}
			keys[i] = key
		}
		encrypt, err := middleware.NewEncryption(middleware.EncryptionConfig{
			ActiveKey:    keys[0],
			FallbackKeys: keys[1:],
		})
		if err != nil {
			return nil, fmt.Errorf("storage.encryption_keys: %w", err)
		}
		mws = append(mws, encrypt)
	}
	return mws, nil
}

func openDriver(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (*Storage, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return &Storage{Flows: memory.NewRepository(), Calls: memory.NewStore()}, nil

	case DriverFile:
		return &Storage{
			Flows: file.NewRepository(filepath.Join(cfg.Dir, "flows")),
			Calls: file.NewStore(filepath.Join(cfg.Dir, "calls")),
		}, nil

	case DriverRedis:
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		client := store.Client()
		if err := client.Ping(ctx).Err(); err != nil {
			store.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("using redis storage", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		return &Storage{
			Flows:  redis.NewRepository(client, cfg.Redis.Prefix),
			Calls:  store,
			Locker: redis.NewLocker(client, cfg.Redis.Prefix),
			close:  store.Close,
		}, nil

	case DriverSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite storage", "path", cfg.SQLite.Path)
		return &Storage{
			Flows: sqlite.NewRepository(db),
			Calls: sqlite.NewStore(db),
			close: db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
