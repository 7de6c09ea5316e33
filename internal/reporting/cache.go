package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix = "reporting"
	bumpChannel    = "reporting.bump"
)

// Cache wraps Redis based caching with per-company versioning. Bumping a
// company's version orphans every key built under the old one; orphaned keys
// expire through their TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.Mutex
	versions map[int64]memoVersion
}

type memoVersion struct {
	value   int64
	expires time.Time
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger, versions: make(map[int64]memoVersion)}
}

func versionKey(companyID int64) string {
	return cacheKeyPrefix + ":version:" + strconv.FormatInt(companyID, 10)
}

// Version returns the current cache version of a company, initialising it
// when missing.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if v, ok := c.memo(companyID); ok {
		return v, nil
	}
	key := versionKey(companyID)
	if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
		return 0, err
	}
	ver, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		return 0, err
	}
	c.remember(companyID, ver)
	return ver, nil
}

// BuildKey composes a cache key under the company's current version.
func (c *Cache) BuildKey(ctx context.Context, companyID int64, parts ...string) (string, error) {
	base := strings.Join(append([]string{cacheKeyPrefix, strconv.FormatInt(companyID, 10)}, parts...), ":")
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", base, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
// Concurrent misses for the same key share one loader call. Redis failures
// degrade to calling the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("reporting: cache loader required")
	}
	if c == nil || c.client == nil {
		return decodeLoaded(ctx, loader, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("dashboard cache read", slog.String("key", key), slog.Any("error", err))
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("dashboard cache write", slog.String("key", key), slog.Any("error", err))
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func decodeLoaded(ctx context.Context, loader func(context.Context) (any, error), dest any) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate bumps the company's version and notifies other instances.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(companyID)).Result()
	if err != nil {
		return fmt.Errorf("reporting: bump version: %w", err)
	}
	c.remember(companyID, ver)
	return c.client.Publish(ctx, bumpChannel, fmt.Sprintf("%d:%d", companyID, ver)).Err()
}

// ListenForInvalidation subscribes to version bump notifications and keeps
// the in-process version memo current until ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("reporting: subscribe %s: %w", bumpChannel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				companyID, ver, ok := parseBump(msg.Payload)
				if !ok {
					c.logger.Warn("malformed cache bump", slog.String("payload", msg.Payload))
					continue
				}
				c.remember(companyID, ver)
			}
		}
	}()
	return nil
}

func parseBump(payload string) (int64, int64, bool) {
	rawCompany, rawVersion, found := strings.Cut(payload, ":")
	if !found {
		return 0, 0, false
	}
	companyID, err := strconv.ParseInt(rawCompany, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	ver, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return companyID, ver, true
}

// memo entries live for one TTL so a missed notification heals itself.
func (c *Cache) memo(companyID int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.versions[companyID]
	if !ok || time.Now().After(m.expires) {
		return 0, false
	}
	return m.value, true
}

func (c *Cache) remember(companyID, ver int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.versions[companyID]; ok && current.value > ver && time.Now().Before(current.expires) {
		return
	}
	c.versions[companyID] = memoVersion{value: ver, expires: time.Now().Add(c.ttl)}
}
