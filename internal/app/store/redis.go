package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/matchup"
	"github.com/aseptimu/matchup-votes/internal/app/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisTallyPrefix = "votes:tally:"
	redisIndexKey    = "votes:index"
)

func redisTallyKey(key string) string {
	return redisTallyPrefix + key
}

// RedisStore хранит каждый матчап в отдельном хэше (вариант -> счётчик),
// а список матчапов - в множестве votes:index.
// Инкремент - HINCRBY внутри MULTI/EXEC, так что гонок read-modify-write нет.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewRedisStore подключается по redisURL (redis:// или rediss://) и проверяет соединение.
func NewRedisStore(ctx context.Context, redisURL string, timeout time.Duration, logger *zap.SugaredLogger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	s := &RedisStore{client: redis.NewClient(opt), timeout: timeout, logger: logger}
	if err := s.Ping(ctx); err != nil {
		s.client.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func parseRedisTally(raw map[string]string) (service.Tally, error) {
	tally := make(service.Tally, len(raw))
	for choice, value := range raw {
		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("choice %q: %w", choice, err)
		}
		tally[choice] = count
	}
	return tally, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (service.Tally, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.HGetAll(ctx, redisTallyKey(key)).Result()
	if err != nil {
		s.logger.Errorw("Failed to read tally", "matchup", key, "err", err)
		return nil, unavailable("get", err)
	}
	tally, err := parseRedisTally(raw)
	if err != nil {
		return nil, unavailable("decode "+key, err)
	}
	return tally, nil
}

func (s *RedisStore) Dump(ctx context.Context) (map[string]service.Tally, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	keys, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, unavailable("dump", err)
	}

	cmds := make(map[string]*redis.MapStringStringCmd, len(keys))
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			cmds[key] = pipe.HGetAll(ctx, redisTallyKey(key))
		}
		return nil
	}); err != nil {
		return nil, unavailable("dump", err)
	}

	data := make(map[string]service.Tally, len(keys))
	for key, cmd := range cmds {
		tally, err := parseRedisTally(cmd.Val())
		if err != nil {
			return nil, unavailable("decode "+key, err)
		}
		data[key] = tally
	}
	return data, nil
}

func (s *RedisStore) Increment(ctx context.Context, key, choice string) (service.Tally, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var get *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, redisIndexKey, key)
		pipe.HIncrBy(ctx, redisTallyKey(key), choice, 1)
		get = pipe.HGetAll(ctx, redisTallyKey(key))
		return nil
	})
	if err != nil {
		s.logger.Errorw("Failed to increment vote", "matchup", key, "choice", choice, "err", err)
		return nil, unavailable("increment", err)
	}

	tally, err := parseRedisTally(get.Val())
	if err != nil {
		return nil, unavailable("decode "+key, err)
	}
	return tally, nil
}

// NormalizeKeys переносит счётчики из хэшей с '_' в ключе в нормализованные хэши.
// Вызывается при старте, до приёма запросов. Каждый перенос идёт под WATCH,
// поэтому несколько экземпляров, стартующих одновременно, не складывают
// один и тот же хэш дважды.
func (s *RedisStore) NormalizeKeys(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	keys, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, unavailable("scan keys", err)
	}

	changed := 0
	for _, key := range keys {
		if !strings.Contains(key, "_") {
			continue
		}
		moved, err := s.moveKey(ctx, key)
		if err != nil {
			return changed, err
		}
		if moved {
			changed++
		}
	}
	return changed, nil
}

const redisMoveAttempts = 10

// moveKey переносит хэш key в нормализованный ключ. Возвращает false, если
// хэш уже перенёс кто-то другой.
func (s *RedisStore) moveKey(ctx context.Context, key string) (bool, error) {
	oldKey := redisTallyKey(key)
	normalized := matchup.Normalize(key)

	for attempt := 0; attempt < redisMoveAttempts; attempt++ {
		moved := false
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGetAll(ctx, oldKey).Result()
			if err != nil {
				return err
			}
			indexed, err := tx.SIsMember(ctx, redisIndexKey, key).Result()
			if err != nil {
				return err
			}
			if len(raw) == 0 && !indexed {
				return nil
			}
			tally, err := parseRedisTally(raw)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for choice, count := range tally {
					pipe.HIncrBy(ctx, redisTallyKey(normalized), choice, count)
				}
				pipe.SAdd(ctx, redisIndexKey, normalized)
				pipe.Del(ctx, oldKey)
				pipe.SRem(ctx, redisIndexKey, key)
				return nil
			})
			if err == nil {
				moved = true
			}
			return err
		}, oldKey)

		switch {
		case err == nil:
			return moved, nil
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debugw("Key moved concurrently, retrying", "matchup", key, "attempt", attempt)
			continue
		default:
			return false, unavailable("merge "+key, err)
		}
	}
	return false, unavailable("merge "+key, fmt.Errorf("gave up after %d attempts", redisMoveAttempts))
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
