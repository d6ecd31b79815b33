// Package journal persists state transitions to PostgreSQL for
// after-the-fact diagnostics. The resilience core itself keeps no
// persistent state; the journal is a plain consumer of the event bus
// and the system runs unchanged without it.
package journal

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx via database/sql
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/duongvq/homelink/internal/core/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds journal database configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SubscribingBus is the bus surface the journal needs.
type SubscribingBus interface {
	Subscribe(t domain.EventType, handler func(domain.Event), priority domain.EventPriority) func()
}

type entry struct {
	OccurredAt time.Time `db:"occurred_at"`
	EventType  string    `db:"event_type"`
	Interface  string    `db:"interface_id"`
	OldState   string    `db:"old_state"`
	NewState   string    `db:"new_state"`
	Reason     string    `db:"reason"`
	Failure    string    `db:"failure"`
}

// Journal records transitions on a dedicated writer goroutine so bus
// handlers only enqueue.
type Journal struct {
	db  *sqlx.DB
	log *slog.Logger

	mu      sync.Mutex
	closed  bool
	queue   chan entry
	unsubs  []func()
	done    chan struct{}
	started bool
}

// Open connects, configures the pool, and runs migrations.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Journal, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(5)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return &Journal{
		db:    db,
		log:   log,
		queue: make(chan entry, 256),
		done:  make(chan struct{}),
	}, nil
}

// Start subscribes to transition events and begins writing.
func (j *Journal) Start(ctx context.Context, bus SubscribingBus) {
	j.unsubs = append(j.unsubs,
		bus.Subscribe(domain.EventClientStateChanged, j.onClientChange, domain.PriorityLow),
		bus.Subscribe(domain.EventCentralStateChanged, j.onCentralChange, domain.PriorityLow),
	)
	j.started = true
	go j.run(ctx)
}

// Close drains the queue and closes the database.
func (j *Journal) Close() error {
	j.stop()
	return j.db.Close()
}

// stop detaches from the bus and shuts the writer down. The closed
// flag is flipped under the same lock enqueue sends under, so a
// handler already dispatched by an in-flight publish cannot hit the
// closed channel.
func (j *Journal) stop() {
	for _, unsub := range j.unsubs {
		unsub()
	}
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	if j.started {
		close(j.queue)
		<-j.done
	}
}

func (j *Journal) onClientChange(ev domain.Event) {
	change, ok := ev.Payload.(domain.ClientStateChange)
	if !ok {
		return
	}
	j.enqueue(entry{
		OccurredAt: ev.Timestamp,
		EventType:  string(ev.Type),
		Interface:  string(change.Interface),
		OldState:   string(change.Old),
		NewState:   string(change.New),
		Reason:     change.Reason,
		Failure:    string(change.Failure),
	})
}

func (j *Journal) onCentralChange(ev domain.Event) {
	change, ok := ev.Payload.(domain.CentralStateChange)
	if !ok {
		return
	}
	j.enqueue(entry{
		OccurredAt: ev.Timestamp,
		EventType:  string(ev.Type),
		Interface:  string(change.Interface),
		OldState:   string(change.Old),
		NewState:   string(change.New),
		Failure:    string(change.Failure),
	})
}

func (j *Journal) enqueue(e entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.log.Warn("Journal queue full, dropping entry", "type", e.EventType)
	}
}

func (j *Journal) run(ctx context.Context) {
	defer close(j.done)

	const insert = `
		INSERT INTO transitions (occurred_at, event_type, interface_id, old_state, new_state, reason, failure)
		VALUES (:occurred_at, :event_type, :interface_id, :old_state, :new_state, :reason, :failure)`

	for e := range j.queue {
		if _, err := j.db.NamedExecContext(ctx, insert, e); err != nil {
			j.log.Warn("Failed to write journal entry", "type", e.EventType, "error", err)
		}
	}
}

// Recent returns the most recent n transitions, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Transition, error) {
	const query = `
		SELECT occurred_at, event_type, interface_id, old_state, new_state, reason, failure
		FROM transitions ORDER BY occurred_at DESC LIMIT $1`

	var rows []Transition
	if err := j.db.SelectContext(ctx, &rows, query, n); err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	return rows, nil
}

// Transition is one journalled state change.
type Transition struct {
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	EventType  string    `db:"event_type"  json:"event_type"`
	Interface  string    `db:"interface_id" json:"interface_id"`
	OldState   string    `db:"old_state"   json:"old_state"`
	NewState   string    `db:"new_state"   json:"new_state"`
	Reason     string    `db:"reason"      json:"reason,omitempty"`
	Failure    string    `db:"failure"     json:"failure,omitempty"`
}
