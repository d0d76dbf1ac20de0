package mq

import (
	"context"
	"errors"
	"strings"

	"github.com/cerebro-dash/apiserver/config"
	"github.com/cerebro-dash/apiserver/types"
	"github.com/redis/go-redis/v9"
)

// RedisClient implements Backend over Redis pub/sub. Delivery is at most
// once: messages published while nobody is subscribed are lost, and handler
// errors cannot trigger redelivery.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisClient{client: client}, nil
}

// Publish sends data to the channel. Attributes have no Redis equivalent and
// are dropped.
func (r *RedisClient) Publish(ctx context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("redis channel is required")
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return "", err
	}
	return newMessageID(), nil
}

// Subscribe delivers every message on channel to handler in order.
func (r *RedisClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("redis channel is required")
	}

	ps := r.client.Subscribe(ctx, channel)
	defer func() {
		_ = ps.Close()
	}()

	// Blocking reads ignore cancellation; closing the subscription unblocks them.
	stop := context.AfterFunc(ctx, func() {
		_ = ps.Close()
	})
	defer stop()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = handler(ctx, Message{
			Data:       []byte(msg.Payload),
			Attributes: map[string]string{"channel": msg.Channel},
		})
	}
}

const (
	botKeyPattern = "bot:*"
	statsHashKey  = "cerebro:stats"
	scanBatch     = 500
)

// LiveStats counts the bot:* keys and reads the cerebro:stats hash. Keys are
// walked with SCAN so large keyspaces do not block the server.
func (r *RedisClient) LiveStats(ctx context.Context) (types.LiveStats, error) {
	active := 0
	iter := r.client.Scan(ctx, 0, botKeyPattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		active++
	}
	if err := iter.Err(); err != nil {
		return types.LiveStats{}, err
	}

	stats, err := r.client.HGetAll(ctx, statsHashKey).Result()
	if err != nil {
		return types.LiveStats{}, err
	}
	return types.LiveStats{ActiveBots: active, Stats: stats}, nil
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
