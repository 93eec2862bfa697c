package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avstrong/pension/internal/booking"
	"github.com/avstrong/pension/internal/logger"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "pension:catalog:"

type Config struct {
	L        *logger.Logger
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient connects to Redis and fails if it cannot be pinged within two seconds.
func NewClient(ctx context.Context, conf Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second) //nolint:gomnd
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis at %s: %w", conf.Addr, err)
	}

	return client, nil
}

// Catalog is a read-through cache in front of another booking.Catalog.
// Cache failures are logged and fall through to the source; source errors are
// returned unchanged and never cached.
type Catalog struct {
	source booking.Catalog
	client *redis.Client
	ttl    time.Duration
	l      *logger.Logger
}

func NewCatalog(source booking.Catalog, client *redis.Client, conf Config) *Catalog {
	return &Catalog{
		source: source,
		client: client,
		ttl:    conf.TTL,
		l:      conf.L,
	}
}

func roomsKey(roomType string) string {
	return keyPrefix + "rooms:" + roomType
}

func programKey(id string) string {
	return keyPrefix + "program:" + id
}

func (c *Catalog) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}

	if err != nil {
		c.l.LogWarnf("Could not read %s from cache: %v", key, err.Error())

		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		c.l.LogWarnf("Could not decode cached %s: %v", key, err.Error())

		return false
	}

	return true
}

func (c *Catalog) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.l.LogWarnf("Could not encode %s for cache: %v", key, err.Error())

		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.l.LogWarnf("Could not write %s to cache: %v", key, err.Error())
	}
}

func (c *Catalog) GetRoomsByType(ctx context.Context, roomType string) ([]booking.Room, error) {
	var rooms []booking.Room
	if c.get(ctx, roomsKey(roomType), &rooms) {
		return rooms, nil
	}

	rooms, err := c.source.GetRoomsByType(ctx, roomType)
	if err != nil {
		return nil, err
	}

	c.set(ctx, roomsKey(roomType), rooms)

	return rooms, nil
}

func (c *Catalog) GetProgramByID(ctx context.Context, id string) (*booking.Program, error) {
	var program booking.Program
	if c.get(ctx, programKey(id), &program) {
		return &program, nil
	}

	p, err := c.source.GetProgramByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.set(ctx, programKey(id), p)

	return p, nil
}

// Invalidate drops the cached entries after a catalog write.
func (c *Catalog) Invalidate(ctx context.Context, roomTypes []string, programIDs []string) error {
	keys := make([]string, 0, len(roomTypes)+len(programIDs))

	for _, t := range roomTypes {
		keys = append(keys, roomsKey(t))
	}

	for _, id := range programIDs {
		keys = append(keys, programKey(id))
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached catalog keys: %w", err)
	}

	return nil
}
