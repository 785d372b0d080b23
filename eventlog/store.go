package eventlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	storeQueueSize = 4096
	storeBatchSize = 256
)

type storedEvent struct {
	Event
	at time.Time
}

// Store persists events to SQLite. Log queues events for a background writer that inserts them
// in batches, so the caller never waits on disk I/O. Events are dropped if the queue is full.
type Store struct {
	db      *sql.DB
	session string
	start   time.Time
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan storedEvent
	done    chan struct{}
	dropped atomic.Uint64
}

var _ Logger = &Store{}

// OpenStore opens or creates the SQLite database at path, migrates it to the latest schema and
// starts recording events for session
func OpenStore(path, session string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	err = migrateUp(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:      db,
		session: session,
		now:     time.Now,
		events:  make(chan storedEvent, storeQueueSize),
		done:    make(chan struct{}),
	}
	s.start = s.now()

	_, err = db.Exec(`INSERT OR REPLACE INTO sessions (name, started_at) VALUES (?, ?)`, session, s.start.UnixNano())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error recording session: %w", err)
	}

	go s.run()

	return s, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	// m is not closed because that would close db
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// Log implements Logger.
func (s *Store) Log(tag Tag, payload string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	now := s.now()
	select {
	case s.events <- storedEvent{Event{Elapsed: now.Sub(s.start), Tag: tag, Payload: payload}, now}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the queue was full
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Store) run() {
	defer close(s.done)

	batch := make([]storedEvent, 0, storeBatchSize)
	for e := range s.events {
		batch = append(batch[:0], e)
	fill:
		for len(batch) < storeBatchSize {
			select {
			case e, ok := <-s.events:
				if !ok {
					break fill
				}
				batch = append(batch, e)
			default:
				break fill
			}
		}

		err := s.insert(batch)
		if err != nil {
			log.Printf("error storing %d events: %v", len(batch), err)
		}
	}
}

func (s *Store) insert(batch []storedEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO events (session, elapsed_ms, tag, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range batch {
		_, err = stmt.Exec(s.session, e.Elapsed.Milliseconds(), string(e.Tag), e.Payload, e.at.UnixNano())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Events returns the recorded events for session in insertion order, optionally filtered by tag
func (s *Store) Events(ctx context.Context, session string, tags ...Tag) ([]Event, error) {
	return QueryEvents(ctx, s.db, session, tags...)
}

// QueryEvents reads events for session from db
func QueryEvents(ctx context.Context, db *sql.DB, session string, tags ...Tag) ([]Event, error) {
	query := `SELECT elapsed_ms, tag, payload FROM events WHERE session = ?`
	args := []any{session}
	if len(tags) > 0 {
		query += ` AND tag IN (?` + strings.Repeat(",?", len(tags)-1) + `)`
		for _, t := range tags {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var (
			ms  int64
			e   Event
			tag string
		)
		err = rows.Scan(&ms, &tag, &e.Payload)
		if err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		e.Elapsed = time.Duration(ms) * time.Millisecond
		e.Tag = Tag(tag)
		result = append(result, e)
	}

	return result, rows.Err()
}

// Close writes all queued events, marks the session stopped and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done

	_, err := s.db.Exec(`UPDATE sessions SET stopped_at = ? WHERE name = ?`, s.now().UnixNano(), s.session)
	if err != nil {
		log.Printf("error recording session stop: %v", err)
	}

	return s.db.Close()
}
