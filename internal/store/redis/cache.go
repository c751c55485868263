// Package redis caches fetched price series and carries price-update
// notifications between the refresher and the websocket gateway.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"memetrader/internal/model"
)

const (
	// UpdatesChannel carries model.PriceUpdate JSON after each refresh.
	UpdatesChannel = "prices:updated"

	keyPrefix = "prices:"

	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second
)

// Config configures the Redis cache.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache stores price series keyed by pair and timeframe. Every call goes
// through a circuit breaker; while it is open, reads behave as misses and
// writes are skipped.
type Cache struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// New creates a Redis cache and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("[redis] connected", "addr", cfg.Addr)
	return NewWithClient(client, NewCircuitBreaker(defaultMaxFailures, defaultResetTimeout)), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, breaker *CircuitBreaker) *Cache {
	return &Cache{client: client, breaker: breaker}
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker so callers can observe its state.
func (c *Cache) Breaker() *CircuitBreaker { return c.breaker }

// PricesKey returns "prices:{pair}:{timeframe}".
func PricesKey(pair string, tf model.Timeframe) string {
	return keyPrefix + pair + ":" + string(tf)
}

// GetPrices returns the cached series, or nil, nil on a miss.
func (c *Cache) GetPrices(ctx context.Context, pair string, tf model.Timeframe) ([]model.PriceSample, error) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, PricesKey(pair, tf)).Bytes()
		if err == goredis.Nil {
			return nil
		}
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", PricesKey(pair, tf), err)
	}
	if data == nil {
		return nil, nil
	}

	var samples []model.PriceSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("unmarshal cached prices: %w", err)
	}
	return samples, nil
}

// SetPrices caches a series for the timeframe's TTL.
func (c *Cache) SetPrices(ctx context.Context, pair string, tf model.Timeframe, samples []model.PriceSample) error {
	data, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("marshal prices: %w", err)
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, PricesKey(pair, tf), data, tf.CacheTTL()).Err()
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", PricesKey(pair, tf), err)
	}
	return nil
}

// Invalidate drops a cached series.
func (c *Cache) Invalidate(ctx context.Context, pair string, tf model.Timeframe) error {
	return c.breaker.Execute(func() error {
		return c.client.Del(ctx, PricesKey(pair, tf)).Err()
	})
}

// PublishUpdate announces a refreshed series on UpdatesChannel.
func (c *Cache) PublishUpdate(ctx context.Context, update model.PriceUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	return c.breaker.Execute(func() error {
		return c.client.Publish(ctx, UpdatesChannel, data).Err()
	})
}

// SubscribeUpdates subscribes to UpdatesChannel. The returned channel is
// closed when ctx is done or the subscription drops. Malformed payloads are
// logged and skipped.
func (c *Cache) SubscribeUpdates(ctx context.Context) (<-chan model.PriceUpdate, error) {
	pubsub := c.client.Subscribe(ctx, UpdatesChannel)
	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", UpdatesChannel, err)
	}

	out := make(chan model.PriceUpdate, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u model.PriceUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					slog.Warn("[redis] bad price update payload", "payload", msg.Payload, "error", err)
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
