package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/vokmon/trade-signal/internal/domain"
)

const (
	latestKeyPrefix  = "signal:latest:"
	DefaultLatestTTL = 24 * time.Hour
)

// LatestSignalCache keeps the most recent directional signal per processor.
type LatestSignalCache struct {
	client *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

func NewLatestSignalCache(client *redis.Client, tracer trace.Tracer, ttl time.Duration) *LatestSignalCache {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &LatestSignalCache{client: client, tracer: tracer, ttl: ttl}
}

func latestKey(key domain.ProcessorKey) string {
	return fmt.Sprintf("%s%d:%d", latestKeyPrefix, key.InstrumentID, key.CandleSize)
}

func (c *LatestSignalCache) StoreLatest(ctx context.Context, key domain.ProcessorKey, sig domain.TradeSignal) error {
	ctx, span := c.tracer.Start(ctx, "latest-cache.store")
	defer span.End()

	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode latest signal: %w", err)
	}
	if err := c.client.Set(ctx, latestKey(key), payload, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Latest returns nil without error when nothing is cached for key.
func (c *LatestSignalCache) Latest(ctx context.Context, key domain.ProcessorKey) (*domain.TradeSignal, error) {
	ctx, span := c.tracer.Start(ctx, "latest-cache.get")
	defer span.End()

	raw, err := c.client.Get(ctx, latestKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sig domain.TradeSignal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("decode latest signal: %w", err)
	}
	return &sig, nil
}
