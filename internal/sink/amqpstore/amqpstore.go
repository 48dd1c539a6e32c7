// Package amqpstore publishes every record on a topic exchange with the
// record key as routing key.
package amqpstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"nuha.dev/bustracker/internal/sink"
)

const DefaultExchange = "location_topic"

type Store struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func Connect(url, exchange string) (*Store, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Store{conn: conn, ch: ch, exchange: exchange}, nil
}

// RoutingKey turns a record key into dot separated topic words.
func RoutingKey(key string) string {
	key = strings.Trim(key, "/")
	return strings.NewReplacer("/", ".", " ", "_", "*", "_", "#", "_").Replace(key)
}

func (st *Store) Put(ctx context.Context, key string, r sink.Record) error {
	body, err := json.Marshal(sink.NewEnvelope(key, r))
	if err != nil {
		return err
	}
	st.mu.Lock()
	ch := st.ch
	st.mu.Unlock()
	if ch == nil {
		return sink.ErrClosed
	}
	return ch.PublishWithContext(ctx, st.exchange, RoutingKey(key), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
}

func (st *Store) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ch == nil {
		return nil
	}
	_ = st.ch.Close()
	st.ch = nil
	return st.conn.Close()
}
