package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appledger "github.com/wms/backend/internal/application/ledger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

const (
	defaultStockLevelKeyPrefix = "stock_level:"
	defaultInvalidationChannel = "stock_level:invalidations"
)

// StockLevelInvalidationMessage is published to peers whenever a cached
// stock figure becomes stale
type StockLevelInvalidationMessage struct {
	ItemID      uuid.UUID `json:"item_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Timestamp   int64     `json:"timestamp"`
}

// RedisStockLevelInvalidator evicts cached stock figures from Redis and
// notifies peer instances over Pub/Sub so their local caches follow suit.
// The ledger calls it after commit only; errors are reported back for
// logging but the write that caused the eviction is already durable.
type RedisStockLevelInvalidator struct {
	client     *redis.Client
	ownsClient bool
	keyPrefix  string
	channel    string
	logger     *zap.Logger
}

// RedisStockLevelInvalidatorOption is a functional option for configuring the invalidator
type RedisStockLevelInvalidatorOption func(*RedisStockLevelInvalidator)

// WithInvalidatorKeyPrefix sets the cache key prefix
func WithInvalidatorKeyPrefix(prefix string) RedisStockLevelInvalidatorOption {
	return func(i *RedisStockLevelInvalidator) {
		i.keyPrefix = prefix
	}
}

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisStockLevelInvalidatorOption {
	return func(i *RedisStockLevelInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisStockLevelInvalidatorOption {
	return func(i *RedisStockLevelInvalidator) {
		i.logger = logger
	}
}

// NewRedisStockLevelInvalidator creates a new Redis-backed invalidator
func NewRedisStockLevelInvalidator(cfg RedisConfig, opts ...RedisStockLevelInvalidatorOption) (*RedisStockLevelInvalidator, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	invalidator := &RedisStockLevelInvalidator{
		client:     client,
		ownsClient: true,
		keyPrefix:  defaultStockLevelKeyPrefix,
		channel:    defaultInvalidationChannel,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(invalidator)
	}

	return invalidator, nil
}

// NewRedisStockLevelInvalidatorWithClient creates an invalidator with an existing Redis client
// Note: The caller retains ownership of the client and is responsible for closing it
func NewRedisStockLevelInvalidatorWithClient(client *redis.Client, opts ...RedisStockLevelInvalidatorOption) *RedisStockLevelInvalidator {
	invalidator := &RedisStockLevelInvalidator{
		client:     client,
		ownsClient: false,
		keyPrefix:  defaultStockLevelKeyPrefix,
		channel:    defaultInvalidationChannel,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(invalidator)
	}

	return invalidator
}

// InvalidateStockLevel deletes the cached figure for the pair and publishes
// an invalidation message for peer instances
func (i *RedisStockLevelInvalidator) InvalidateStockLevel(ctx context.Context, itemID, warehouseID uuid.UUID) error {
	key := i.cacheKey(itemID, warehouseID)

	if err := i.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to evict cached stock level: %w", err)
	}

	msg := StockLevelInvalidationMessage{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Timestamp:   time.Now().UnixNano(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation message: %w", err)
	}

	i.logger.Debug("Invalidated cached stock level",
		zap.String("item_id", itemID.String()),
		zap.String("warehouse_id", warehouseID.String()),
		zap.String("channel", i.channel))

	return nil
}

// Subscribe listens for invalidation messages published by peer instances.
// The callback is invoked for each received message. This method blocks
// until the context is cancelled and should be called in a goroutine.
func (i *RedisStockLevelInvalidator) Subscribe(ctx context.Context, callback func(msg StockLevelInvalidationMessage)) error {
	pubsub := i.client.Subscribe(ctx, i.channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	i.logger.Info("Subscribed to stock level invalidation channel",
		zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Stock level invalidation channel closed")
				return nil
			}

			var updateMsg StockLevelInvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &updateMsg); err != nil {
				i.logger.Error("Failed to unmarshal invalidation message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}

			callback(updateMsg)
		}
	}
}

func (i *RedisStockLevelInvalidator) cacheKey(itemID, warehouseID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", i.keyPrefix, itemID, warehouseID)
}

// Close releases the Redis client if this invalidator owns it
func (i *RedisStockLevelInvalidator) Close() error {
	if i.ownsClient {
		return i.client.Close()
	}
	return nil
}

// Ensure RedisStockLevelInvalidator implements CacheInvalidator
var _ appledger.CacheInvalidator = (*RedisStockLevelInvalidator)(nil)

// NoopCacheInvalidator is used when no external cache is configured
type NoopCacheInvalidator struct{}

// NewNoopCacheInvalidator creates a new NoopCacheInvalidator
func NewNoopCacheInvalidator() *NoopCacheInvalidator {
	return &NoopCacheInvalidator{}
}

// InvalidateStockLevel does nothing
func (n *NoopCacheInvalidator) InvalidateStockLevel(ctx context.Context, itemID, warehouseID uuid.UUID) error {
	return nil
}

var _ appledger.CacheInvalidator = (*NoopCacheInvalidator)(nil)
