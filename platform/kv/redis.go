package kv

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// Redis is a Store backed by redis. Every write is published on a change
// channel so handles in other processes can replay it.
type Redis struct {
	client    *redis.Client
	namespace string
	origin    string
	log       *logger.Logger
}

var _ Store = (*Redis)(nil)

// NewRedisClient builds a go-redis client from the configured URL.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig != nil {
			opt.TLSConfig = opt.TLSConfig.Clone()
			opt.TLSConfig.InsecureSkipVerify = true
		} else {
			opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
	return redis.NewClient(opt), nil
}

// NewRedis returns a handle that stores keys under namespace and writes as origin.
func NewRedis(client *redis.Client, namespace, origin string, log *logger.Logger) *Redis {
	return &Redis{client: client, namespace: namespace, origin: origin, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	payload, err := json.Marshal(Change{Key: key, Value: value, Origin: r.origin})
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.namespace+key, value, 0)
	pipe.Publish(ctx, r.channel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	payload, err := json.Marshal(Change{Key: key, Deleted: true, Origin: r.origin})
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.namespace+key)
	pipe.Publish(ctx, r.channel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	match := r.namespace + prefix + "*"
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("kv keys %s: %w", prefix, err)
		}
		for _, key := range batch {
			keys = append(keys, strings.TrimPrefix(key, r.namespace))
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Watch subscribes to the change channel. It returns once the subscription
// is confirmed, so writes made afterwards are delivered.
func (r *Redis) Watch(prefix string, fn func(Change)) func() {
	ctx := context.Background()
	pubsub := r.client.Subscribe(ctx, r.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		r.log.CollaboratorError("redis", "subscribe", err)
		_ = pubsub.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				r.log.Warn("kv change decode failed", "error", err)
				continue
			}
			if change.Origin == r.origin || !matches(change.Key, prefix) {
				continue
			}
			fn(change)
		}
	}()

	return func() {
		_ = pubsub.Close()
		<-done
	}
}

func (r *Redis) channel() string {
	return r.namespace + "changes"
}
