package main

import (
	"context"
	"os"

	"nuha.dev/bustracker/internal/config"
	"nuha.dev/bustracker/internal/sink"
	"nuha.dev/bustracker/internal/sink/amqpstore"
	"nuha.dev/bustracker/internal/sink/brokerstore"
	"nuha.dev/bustracker/internal/sink/dynamostore"
	"nuha.dev/bustracker/internal/sink/logstore"
	"nuha.dev/bustracker/internal/sink/memstore"
	"nuha.dev/bustracker/internal/sink/natsstore"
	"nuha.dev/bustracker/internal/sink/pgstore"
	"nuha.dev/bustracker/internal/sink/redisstore"
)

// openSink connects the configured driver. The getter is nil for drivers
// that cannot be read back.
func openSink(ctx context.Context, c *config.SinkConfig) (sink.Sink, sink.Getter, error) {
	switch c.Driver {
	case "log":
		return logstore.New(os.Stdout), nil, nil

	case "redis":
		st, err := redisstore.New(ctx, &redisstore.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Channel:  c.Redis.Channel,
			TTL:      c.Redis.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil

	case "postgres":
		st, err := pgstore.Connect(ctx, c.Postgres.URL, c.Postgres.Table)
		if err != nil {
			return nil, nil, err
		}
		if c.Postgres.Init {
			if err := st.Init(ctx); err != nil {
				st.Close()
				return nil, nil, err
			}
		}
		return st, st, nil

	case "nats":
		st, err := natsstore.Connect(c.NATS.URL, c.NATS.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil

	case "dynamodb":
		st, err := dynamostore.Connect(ctx, c.DynamoDB.Region, c.DynamoDB.Endpoint, c.DynamoDB.Table)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil

	case "amqp":
		st, err := amqpstore.Connect(c.AMQP.URL, c.AMQP.Exchange)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil

	case "broker":
		br := brokerstore.New(&brokerstore.Config{
			Addr:     c.Broker.Addr,
			BufSize:  c.Broker.BufSize,
			TimerDur: c.Broker.FlushInterval,
		})
		if err := br.Listen(); err != nil {
			return nil, nil, err
		}
		go func() {
			_ = br.Run(ctx)
		}()
		return br, nil, nil
	}
	st := memstore.New()
	return st, st, nil
}
