// Package sqlite implements the federation core's store.ActorCache,
// store.ReachabilityStore, and store.OutgoingQueue interfaces on top of
// database/sql, supporting both SQLite (default) and PostgreSQL, grounded
// on the dual-driver pattern the bridge's db package uses.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/klppl/apfed/internal/store"
)

// Store wraps a database connection. It implements no store interface
// itself; Actors, Reachability and Queue return views that implement them.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens a database connection. The URL can be a bare file path (→
// SQLite), "sqlite://path" (→ SQLite), or "postgres://..." (→ PostgreSQL).
func Open(databaseURL string) (*Store, error) {
	driver, dsn := detectDriver(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping db: %w", err)
	}

	if driver == "sqlite" {
		const sqliteMaxConns = 4
		db.SetMaxOpenConns(sqliteMaxConns)
		db.SetMaxIdleConns(sqliteMaxConns)

		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := db.Exec(pragma); err != nil {
				return nil, fmt.Errorf("store: sqlite pragma (%s): %w", pragma, err)
			}
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

var commonMigrations = []string{
	`CREATE TABLE IF NOT EXISTS actor_cache (
		actor_id   TEXT NOT NULL PRIMARY KEY,
		actor_json TEXT NOT NULL,
		fetched_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reachability (
		actor_id              TEXT NOT NULL PRIMARY KEY,
		last_attempt_at       TEXT,
		last_success_at       TEXT,
		consecutive_failures  INTEGER NOT NULL DEFAULT 0,
		marked_unreachable_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outgoing_queue (
		id              TEXT NOT NULL PRIMARY KEY,
		sender_id       TEXT NOT NULL,
		recipient_inbox TEXT NOT NULL,
		activity_json   TEXT NOT NULL,
		attempt_count   INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS outgoing_queue_next_attempt ON outgoing_queue(next_attempt_at)`,
}

func (s *Store) migrate() error {
	slog.Info("running federation store migrations", "driver", s.driver)
	for _, m := range commonMigrations {
		if _, err := s.db.Exec(m); err != nil {
			if s.driver == "postgres" && strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("store: migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Actors returns the store.ActorCache view of this database.
func (s *Store) Actors() store.ActorCache { return actorCache{s} }

// Reachability returns the store.ReachabilityStore view of this database.
func (s *Store) Reachability() store.ReachabilityStore { return reachabilityStore{s} }

// Queue returns the store.OutgoingQueue view of this database.
func (s *Store) Queue() store.OutgoingQueue { return outgoingQueue{s} }

// actorCache, reachabilityStore, and outgoingQueue are thin views over the
// shared *Store connection: each implements exactly one store interface so
// their same-named methods (Get, in particular) don't collide on Store
// itself.
type actorCache struct{ s *Store }
type reachabilityStore struct{ s *Store }
type outgoingQueue struct{ s *Store }

func (s *Store) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

const rfc3339 = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(rfc3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(rfc3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- ActorCache ---

func (a actorCache) Get(actorID string) (store.CachedActor, bool) {
	var json, fetchedAt string
	err := a.s.db.QueryRow(
		`SELECT actor_json, fetched_at FROM actor_cache WHERE actor_id = `+a.s.ph(1), actorID,
	).Scan(&json, &fetchedAt)
	if err != nil {
		return store.CachedActor{}, false
	}
	return store.CachedActor{ActorID: actorID, ActorJSON: []byte(json), FetchedAt: parseTime(fetchedAt)}, true
}

func (a actorCache) Put(actor store.CachedActor) error {
	var stmt string
	if a.s.driver == "sqlite" {
		stmt = `INSERT INTO actor_cache (actor_id, actor_json, fetched_at) VALUES (?, ?, ?)
		     ON CONFLICT(actor_id) DO UPDATE SET actor_json=excluded.actor_json, fetched_at=excluded.fetched_at`
	} else {
		stmt = `INSERT INTO actor_cache (actor_id, actor_json, fetched_at) VALUES ($1, $2, $3)
		     ON CONFLICT(actor_id) DO UPDATE SET actor_json=EXCLUDED.actor_json, fetched_at=EXCLUDED.fetched_at`
	}
	_, err := a.s.db.Exec(stmt, actor.ActorID, string(actor.ActorJSON), formatTime(actor.FetchedAt))
	return err
}

func (a actorCache) Invalidate(actorID string) error {
	_, err := a.s.db.Exec(`DELETE FROM actor_cache WHERE actor_id = `+a.s.ph(1), actorID)
	return err
}

// --- ReachabilityStore ---

func (r reachabilityStore) Get(actorID string) (store.ReachabilityRecord, bool) {
	var lastAttempt, lastSuccess, markedUnreachable string
	var failures int
	err := r.s.db.QueryRow(
		`SELECT last_attempt_at, last_success_at, consecutive_failures, marked_unreachable_at
		 FROM reachability WHERE actor_id = `+r.s.ph(1), actorID,
	).Scan(&lastAttempt, &lastSuccess, &failures, &markedUnreachable)
	if err != nil {
		return store.ReachabilityRecord{}, false
	}
	return store.ReachabilityRecord{
		ActorID:             actorID,
		LastAttemptAt:       parseTime(lastAttempt),
		LastSuccessAt:       parseTime(lastSuccess),
		ConsecutiveFailures: failures,
		MarkedUnreachableAt: parseTime(markedUnreachable),
	}, true
}

func (r reachabilityStore) RecordSuccess(actorID string, at time.Time) error {
	return r.upsert(actorID, at, time.Time{}, 0, true)
}

func (r reachabilityStore) RecordFailure(actorID string, at time.Time, markUnreachable bool) error {
	existing, _ := r.Get(actorID)
	failures := existing.ConsecutiveFailures + 1
	unreachableAt := existing.MarkedUnreachableAt
	if markUnreachable {
		unreachableAt = at
	}
	return r.upsert(actorID, at, unreachableAt, failures, false)
}

func (r reachabilityStore) upsert(actorID string, attemptAt, unreachableAt time.Time, failures int, success bool) error {
	var lastSuccess time.Time
	if success {
		lastSuccess = attemptAt
	}

	var stmt string
	if r.s.driver == "sqlite" {
		stmt = `INSERT INTO reachability (actor_id, last_attempt_at, last_success_at, consecutive_failures, marked_unreachable_at)
		     VALUES (?, ?, ?, ?, ?)
		     ON CONFLICT(actor_id) DO UPDATE SET
		       last_attempt_at=excluded.last_attempt_at,
		       last_success_at=CASE WHEN ? THEN excluded.last_success_at ELSE reachability.last_success_at END,
		       consecutive_failures=excluded.consecutive_failures,
		       marked_unreachable_at=excluded.marked_unreachable_at`
		_, err := r.s.db.Exec(stmt, actorID, formatTime(attemptAt), formatTime(lastSuccess), failures, formatTime(unreachableAt), success)
		return err
	}
	stmt = `INSERT INTO reachability (actor_id, last_attempt_at, last_success_at, consecutive_failures, marked_unreachable_at)
	     VALUES ($1, $2, $3, $4, $5)
	     ON CONFLICT(actor_id) DO UPDATE SET
	       last_attempt_at=EXCLUDED.last_attempt_at,
	       last_success_at=CASE WHEN $6 THEN EXCLUDED.last_success_at ELSE reachability.last_success_at END,
	       consecutive_failures=EXCLUDED.consecutive_failures,
	       marked_unreachable_at=EXCLUDED.marked_unreachable_at`
	_, err := r.s.db.Exec(stmt, actorID, formatTime(attemptAt), formatTime(lastSuccess), failures, formatTime(unreachableAt), success)
	return err
}

// --- OutgoingQueue ---

func (oq outgoingQueue) Enqueue(entry store.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	var stmt string
	if oq.s.driver == "sqlite" {
		stmt = `INSERT INTO outgoing_queue (id, sender_id, recipient_inbox, activity_json, attempt_count, next_attempt_at)
		     VALUES (?, ?, ?, ?, ?, ?)`
	} else {
		stmt = `INSERT INTO outgoing_queue (id, sender_id, recipient_inbox, activity_json, attempt_count, next_attempt_at)
		     VALUES ($1, $2, $3, $4, $5, $6)`
	}
	_, err := oq.s.db.Exec(stmt, entry.ID, entry.SenderID, entry.RecipientInbox, string(entry.ActivityJSON),
		entry.AttemptCount, formatTime(entry.NextAttemptAt))
	return err
}

func (oq outgoingQueue) DueEntries(before time.Time, limit int) ([]store.QueueEntry, error) {
	var stmt string
	if oq.s.driver == "sqlite" {
		stmt = `SELECT id, sender_id, recipient_inbox, activity_json, attempt_count, next_attempt_at
		     FROM outgoing_queue WHERE next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`
	} else {
		stmt = `SELECT id, sender_id, recipient_inbox, activity_json, attempt_count, next_attempt_at
		     FROM outgoing_queue WHERE next_attempt_at <= $1 ORDER BY next_attempt_at ASC LIMIT $2`
	}
	rows, err := oq.s.db.Query(stmt, formatTime(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.QueueEntry
	for rows.Next() {
		var e store.QueueEntry
		var activityJSON, nextAttempt string
		if err := rows.Scan(&e.ID, &e.SenderID, &e.RecipientInbox, &activityJSON, &e.AttemptCount, &nextAttempt); err != nil {
			return nil, err
		}
		e.ActivityJSON = []byte(activityJSON)
		e.NextAttemptAt = parseTime(nextAttempt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (oq outgoingQueue) Reschedule(id string, attemptCount int, nextAttemptAt time.Time) error {
	var stmt string
	if oq.s.driver == "sqlite" {
		stmt = `UPDATE outgoing_queue SET attempt_count = ?, next_attempt_at = ? WHERE id = ?`
	} else {
		stmt = `UPDATE outgoing_queue SET attempt_count = $1, next_attempt_at = $2 WHERE id = $3`
	}
	_, err := oq.s.db.Exec(stmt, attemptCount, formatTime(nextAttemptAt), id)
	return err
}

func (oq outgoingQueue) Delete(id string) error {
	_, err := oq.s.db.Exec(`DELETE FROM outgoing_queue WHERE id = `+oq.s.ph(1), id)
	return err
}

func detectDriver(u string) (driver, dsn string) {
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return "postgres", u
	}
	if strings.HasPrefix(u, "sqlite://") {
		return "sqlite", strings.TrimPrefix(u, "sqlite://")
	}
	return "sqlite", u
}
