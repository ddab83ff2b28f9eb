// Package store содержит реализации хранилища голосов: память, JSON-файл,
// SQLite, PostgreSQL и Redis.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/config"
	"github.com/aseptimu/matchup-votes/internal/app/matchup"
	"github.com/aseptimu/matchup-votes/internal/app/service"
	"go.uber.org/zap"
)

// Backend - хранилище голосов вместе с проверкой доступности и закрытием.
type Backend interface {
	service.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*InMemoryStore)(nil)
	_ Backend = (*FileStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*Database)(nil)
	_ Backend = (*RedisStore)(nil)
)

// New открывает хранилище, выбранное конфигурацией (см. config.ConfigType.Backend).
// Для PostgreSQL перед открытием применяются миграции.
func New(ctx context.Context, cfg *config.ConfigType, logger *zap.SugaredLogger) (Backend, error) {
	backend := cfg.Backend()
	logger.Infow("Opening vote store", "backend", backend, "timeout", cfg.StoreTimeout)

	switch backend {
	case "postgres":
		if err := MigrateDB(cfg.DSN, logger); err != nil {
			return nil, err
		}
		return NewDB(ctx, cfg.DSN, cfg.StoreTimeout, logger)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL, cfg.StoreTimeout, logger)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath, cfg.StoreTimeout, logger)
	case "file":
		return NewFileStore(cfg.FileStoragePath, cfg.StoreTimeout, logger)
	default:
		return NewStore(), nil
	}
}

// withTimeout ограничивает одно обращение к хранилищу; d <= 0 - без ограничения.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", service.ErrStoreUnavailable, op, err)
}

// normalizeData возвращает копию data с нормализованными ключами и число
// переименованных ключей. Совпавшие после нормализации матчапы складываются.
func normalizeData(data map[string]service.Tally) (map[string]service.Tally, int) {
	out := make(map[string]service.Tally, len(data))
	changed := 0

	for key, tally := range data {
		normalized := matchup.Normalize(key)
		if normalized != key {
			changed++
		}
		merged := out[normalized]
		if merged == nil {
			merged = service.Tally{}
			out[normalized] = merged
		}
		for choice, count := range tally {
			merged[choice] += count
		}
	}

	return out, changed
}
