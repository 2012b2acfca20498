package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-forum-client/internal/models"
)

// Entry — последний применённый снапшот транскрипта.
type Entry struct {
	Events   []models.Event
	SyncedAt time.Time
}

// TranscriptCache — кэш снапшотов для тёплого старта транскрипта.
type TranscriptCache interface {
	// Get возвращает запись и признак её наличия в кэше.
	Get(ctx context.Context, topic string) (*Entry, bool, error)
	// Set сохраняет запись с TTL.
	Set(ctx context.Context, topic string, e *Entry, ttl time.Duration) error
	// Purge удаляет все записи префикса (выход из аккаунта).
	Purge(ctx context.Context) (int, error)
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "forum:transcript:".
func NewRedisCache(redisURL, prefix string) (TranscriptCache, error) {
	if prefix == "" {
		prefix = "forum:transcript:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(topic string) string { return c.prefix + topic }

// Храним как Redis Hash с полями: ev (JSON событий), at (unix nano).
func (c *redisCache) Get(ctx context.Context, topic string) (*Entry, bool, error) {
	m, err := c.rdb.HGetAll(ctx, c.key(topic)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	var events []models.Event
	if err := json.Unmarshal([]byte(m["ev"]), &events); err != nil {
		return nil, false, err
	}

	at, err := strconv.ParseInt(m["at"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	return &Entry{
		Events:   events,
		SyncedAt: time.Unix(0, at).UTC(),
	}, true, nil
}

func (c *redisCache) Set(ctx context.Context, topic string, e *Entry, ttl time.Duration) error {
	events, err := json.Marshal(e.Events)
	if err != nil {
		return err
	}

	kv := map[string]string{
		"ev": string(events),
		"at": strconv.FormatInt(e.SyncedAt.UnixNano(), 10),
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(topic), kv)
	pipe.Expire(ctx, c.key(topic), ttl)

	_, err = pipe.Exec(ctx)
	return err
}

func (c *redisCache) Purge(ctx context.Context) (int, error) {
	n := 0
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}

	return n, iter.Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }
