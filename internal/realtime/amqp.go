package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/admitflow/admitflow/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	amqpExchange = "admitflow.events"

	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 30 * time.Second
)

// AMQPBus implements Bus over a RabbitMQ topic exchange. Topics map 1:1
// to routing keys; each subscription gets its own exclusive auto-delete
// queue bound to its topic.
//
// On a dropped connection the bus reconnects with exponential backoff and
// re-binds every live subscription. While disconnected, Publish and
// Subscribe fail fast with ErrTransientTransport rather than queueing —
// queueing would reorder messages across the reconnect.
type AMQPBus struct {
	url    string
	logger *zap.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	connected atomic.Bool
	closed    atomic.Bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]*amqpSubscription
}

type amqpSubscription struct {
	id      int
	topic   string
	handler Handler
	bus     *AMQPBus
	cancel  chan struct{}
	once    sync.Once
}

// NewAMQPBus dials the broker and starts the reconnect supervisor.
func NewAMQPBus(url string, logger *zap.Logger) (*AMQPBus, error) {
	b := &AMQPBus{
		url:    url,
		logger: logger,
		subs:   make(map[int]*amqpSubscription),
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	go b.supervise()
	return b, nil
}

func (b *AMQPBus) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(amqpExchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.pubCh = ch
	b.mu.Unlock()
	b.connected.Store(true)

	b.logger.Info("amqp connected", zap.String("exchange", amqpExchange))
	return nil
}

// supervise watches the connection and rebuilds it with exponential
// backoff after a drop, then re-binds every live subscription.
func (b *AMQPBus) supervise() {
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		b.connected.Store(false)
		if b.closed.Load() {
			return
		}
		b.logger.Warn("amqp connection lost", zap.Any("reason", closeErr))

		backoff := reconnectBase
		for {
			if b.closed.Load() {
				return
			}
			time.Sleep(backoff)
			if err := b.connect(); err != nil {
				b.logger.Warn("amqp reconnect failed",
					zap.Error(err),
					zap.Duration("next_attempt_in", backoff),
				)
				backoff *= 2
				if backoff > reconnectMax {
					backoff = reconnectMax
				}
				continue
			}
			break
		}

		b.resubscribeAll()
	}
}

func (b *AMQPBus) resubscribeAll() {
	b.subMu.Lock()
	subs := make([]*amqpSubscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subMu.Unlock()

	for _, s := range subs {
		if err := b.consume(s); err != nil {
			b.logger.Error("resubscribe failed",
				zap.String("topic", s.topic),
				zap.Error(err),
			)
		}
	}
}

// Healthy reports whether the broker connection is currently up. The
// capability probe caches this answer.
func (b *AMQPBus) Healthy(context.Context) bool {
	return b.connected.Load()
}

func (b *AMQPBus) Publish(ctx context.Context, topic string, ev Event) error {
	if !b.connected.Load() {
		return fmt.Errorf("publish %q: %w", topic, models.ErrTransientTransport)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	b.mu.Lock()
	ch := b.pubCh
	b.mu.Unlock()

	err = ch.PublishWithContext(ctx, amqpExchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   ev.Time,
		Type:        ev.Type,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish %q: %w", topic, models.ErrTransientTransport)
	}
	return nil
}

func (b *AMQPBus) Subscribe(topic string, h Handler) (Subscription, error) {
	if !b.connected.Load() {
		return nil, fmt.Errorf("subscribe %q: %w", topic, models.ErrTransientTransport)
	}

	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	sub := &amqpSubscription{
		id:      id,
		topic:   topic,
		handler: h,
		bus:     b,
		cancel:  make(chan struct{}),
	}
	b.subs[id] = sub
	b.subMu.Unlock()

	if err := b.consume(sub); err != nil {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
		return nil, err
	}
	return sub, nil
}

// consume opens a dedicated channel and an exclusive auto-delete queue
// for the subscription. The broker cleans the queue up when the channel
// dies, so unsubscribes and crashes leave nothing behind.
func (b *AMQPBus) consume(sub *amqpSubscription) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, sub.topic, amqpExchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-sub.cancel:
				return
			case d, ok := <-deliveries:
				if !ok {
					// Channel died; the supervisor re-binds us after
					// reconnect, so this goroutine just exits.
					return
				}
				var ev Event
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					b.logger.Warn("drop malformed event",
						zap.String("topic", sub.topic),
						zap.Error(err),
					)
					continue
				}
				sub.handler(ev)
			}
		}
	}()
	return nil
}

func (s *amqpSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.cancel)
		s.bus.subMu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.subMu.Unlock()
	})
}

func (b *AMQPBus) Close() error {
	b.closed.Store(true)
	b.connected.Store(false)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
