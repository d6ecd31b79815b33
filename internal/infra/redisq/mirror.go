// Package redisq mirrors state-change events onto a Redis pub/sub
// channel so external observers can follow connection health without
// linking the library.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duongvq/homelink/internal/core/domain"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// SubscribingBus is the bus surface the mirror needs.
type SubscribingBus interface {
	Subscribe(t domain.EventType, handler func(domain.Event), priority domain.EventPriority) func()
}

// Mirror republishes bus events on Redis. Delivery to Redis happens on
// a dedicated goroutine; bus handlers only enqueue.
type Mirror struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger

	mu      sync.Mutex
	closed  bool
	queue   chan domain.Event
	unsubs  []func()
	done    chan struct{}
	started bool
}

// envelope is the wire form of a mirrored event.
type envelope struct {
	Type      domain.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   any              `json:"payload"`
}

// NewMirror connects to Redis and verifies the connection.
func NewMirror(cfg Config, log *slog.Logger) (*Mirror, error) {
	if log == nil {
		log = slog.Default()
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "homelink:events"
	}

	return &Mirror{
		rdb:     rdb,
		channel: channel,
		log:     log,
		queue:   make(chan domain.Event, 256),
		done:    make(chan struct{}),
	}, nil
}

// Start subscribes to the mirrored event types and begins forwarding.
func (m *Mirror) Start(ctx context.Context, bus SubscribingBus) {
	mirrored := []domain.EventType{
		domain.EventClientStateChanged,
		domain.EventCentralStateChanged,
		domain.EventConnectionChanged,
		domain.EventBreakerStateChanged,
	}
	for _, t := range mirrored {
		m.unsubs = append(m.unsubs, bus.Subscribe(t, m.enqueue, domain.PriorityLow))
	}
	m.started = true
	go m.run(ctx)
}

// Close stops forwarding and closes the Redis connection.
func (m *Mirror) Close() error {
	m.stop()
	return m.rdb.Close()
}

// stop detaches from the bus and shuts the forwarder down. The closed
// flag is flipped under the same lock enqueue sends under, so a
// handler already dispatched by an in-flight publish cannot hit the
// closed channel.
func (m *Mirror) stop() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.started {
		close(m.queue)
		<-m.done
	}
}

func (m *Mirror) enqueue(ev domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		m.log.Warn("Redis mirror queue full, dropping event", "type", ev.Type)
	}
}

func (m *Mirror) run(ctx context.Context) {
	defer close(m.done)
	for ev := range m.queue {
		data, err := json.Marshal(envelope{
			Type:      ev.Type,
			Timestamp: ev.Timestamp,
			Payload:   ev.Payload,
		})
		if err != nil {
			m.log.Warn("Failed to marshal event for mirror", "type", ev.Type, "error", err)
			continue
		}
		if err := m.rdb.Publish(ctx, m.channel, data).Err(); err != nil {
			m.log.Warn("Failed to publish event to redis", "type", ev.Type, "error", err)
		}
	}
}
