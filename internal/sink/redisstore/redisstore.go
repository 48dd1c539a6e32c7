// Package redisstore keeps the last record of each key in redis and
// publishes every write on a pub/sub channel.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nuha.dev/bustracker/internal/sink"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// Channel receives a sink.Envelope per write; empty disables publishing.
	Channel string
	TTL     time.Duration
}

type Store struct {
	rdb    *redis.Client
	config Config
}

func New(ctx context.Context, config *Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(rdb, config), nil
}

func NewWithClient(rdb *redis.Client, config *Config) *Store {
	return &Store{rdb: rdb, config: *config}
}

func (st *Store) Put(ctx context.Context, key string, r sink.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := st.rdb.TxPipeline()
	pipe.Set(ctx, key, data, st.config.TTL)
	if st.config.Channel != "" {
		msg, err := json.Marshal(sink.NewEnvelope(key, r))
		if err != nil {
			return err
		}
		pipe.Publish(ctx, st.config.Channel, msg)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write %s: %w", key, err)
	}
	return nil
}

func (st *Store) Get(ctx context.Context, key string) (sink.Record, error) {
	var r sink.Record
	data, err := st.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return r, sink.ErrNotFound
	}
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(data, &r)
	return r, err
}

func (st *Store) Close() error {
	return st.rdb.Close()
}
