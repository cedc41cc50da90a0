package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/campusnet/internal/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var historyMigrations = []Migration{
	{
		Version:     1,
		Description: "create connectivity history tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE connectivity_checks (
					id         TEXT    PRIMARY KEY,
					reachable  INTEGER NOT NULL,
					layer      TEXT    NOT NULL,
					detail     TEXT    NOT NULL DEFAULT '',
					checked_at TEXT    NOT NULL
				)`,
				`CREATE INDEX idx_checks_checked_at ON connectivity_checks(checked_at)`,
				`CREATE TABLE login_attempts (
					id           TEXT    PRIMARY KEY,
					username     TEXT    NOT NULL,
					attempt      INTEGER NOT NULL,
					success      INTEGER NOT NULL,
					reason       TEXT    NOT NULL DEFAULT '',
					attempted_at TEXT    NOT NULL
				)`,
				`CREATE INDEX idx_logins_attempted_at ON login_attempts(attempted_at)`,
				`CREATE TABLE outages (
					id         TEXT    PRIMARY KEY,
					started_at TEXT    NOT NULL,
					ended_at   TEXT,
					failures   INTEGER NOT NULL
				)`,
			}
			for _, s := range stmts {
				if _, err := tx.Exec(s); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// CheckRecord is one row of connectivity_checks.
type CheckRecord struct {
	ID        string    `json:"id"`
	Reachable bool      `json:"reachable"`
	Layer     string    `json:"layer"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// LoginRecord is one row of login_attempts.
type LoginRecord struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Attempt     int       `json:"attempt"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Outage is one row of outages. EndedAt is zero while the outage is open.
type Outage struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Failures  int       `json:"failures"`
}

// Open reports whether the outage has not ended yet.
func (o Outage) Open() bool {
	return o.EndedAt.IsZero()
}

// History records daemon activity. Safe for concurrent use.
type History struct {
	db     *DB
	logger *zap.Logger

	mu         sync.Mutex
	openOutage string // id of the outage without ended_at, if any
}

// NewHistory migrates the history tables and resumes any outage left open
// by a previous run.
func NewHistory(ctx context.Context, db *DB, logger *zap.Logger) (*History, error) {
	if err := db.Migrate(ctx, "history", historyMigrations); err != nil {
		return nil, err
	}

	h := &History{db: db, logger: logger}
	err := db.SQL().QueryRowContext(ctx,
		"SELECT id FROM outages WHERE ended_at IS NULL ORDER BY started_at DESC LIMIT 1",
	).Scan(&h.openOutage)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("find open outage: %w", err)
	}
	return h, nil
}

// RecordCheck inserts a connectivity check. An empty ID is filled in.
func (h *History) RecordCheck(ctx context.Context, r CheckRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := h.db.SQL().ExecContext(ctx,
		"INSERT INTO connectivity_checks (id, reachable, layer, detail, checked_at) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.Reachable, r.Layer, r.Detail, formatTime(r.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

// RecordLogin inserts a login attempt. An empty ID is filled in.
func (h *History) RecordLogin(ctx context.Context, r LoginRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := h.db.SQL().ExecContext(ctx,
		"INSERT INTO login_attempts (id, username, attempt, success, reason, attempted_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.Username, r.Attempt, r.Success, r.Reason, formatTime(r.AttemptedAt),
	)
	if err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

// BeginOutage opens an outage at the first failure and bumps its failure
// count on later ones.
func (h *History) BeginOutage(ctx context.Context, at time.Time, failures int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.openOutage != "" {
		_, err := h.db.SQL().ExecContext(ctx,
			"UPDATE outages SET failures = ? WHERE id = ?", failures, h.openOutage)
		if err != nil {
			return fmt.Errorf("update outage: %w", err)
		}
		return nil
	}

	id := uuid.NewString()
	_, err := h.db.SQL().ExecContext(ctx,
		"INSERT INTO outages (id, started_at, failures) VALUES (?, ?, ?)",
		id, formatTime(at), failures,
	)
	if err != nil {
		return fmt.Errorf("insert outage: %w", err)
	}
	h.openOutage = id
	return nil
}

// EndOutage closes the open outage, if any.
func (h *History) EndOutage(ctx context.Context, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.openOutage == "" {
		return nil
	}
	_, err := h.db.SQL().ExecContext(ctx,
		"UPDATE outages SET ended_at = ? WHERE id = ?", formatTime(at), h.openOutage)
	if err != nil {
		return fmt.Errorf("close outage: %w", err)
	}
	h.openOutage = ""
	return nil
}

// Prune deletes checks, login attempts and closed outages older than
// cutoff. It returns the number of rows removed.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	c := formatTime(cutoff)
	var total int64
	err := h.db.Tx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM connectivity_checks WHERE checked_at < ?",
			"DELETE FROM login_attempts WHERE attempted_at < ?",
			"DELETE FROM outages WHERE ended_at IS NOT NULL AND ended_at < ?",
		} {
			res, err := tx.ExecContext(ctx, q, c)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return total, nil
}

// RecentChecks returns up to limit checks, newest first.
func (h *History) RecentChecks(ctx context.Context, limit int) ([]CheckRecord, error) {
	rows, err := h.db.SQL().QueryContext(ctx,
		"SELECT id, reachable, layer, detail, checked_at FROM connectivity_checks ORDER BY checked_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	var out []CheckRecord
	for rows.Next() {
		var (
			r  CheckRecord
			at string
		)
		if err := rows.Scan(&r.ID, &r.Reachable, &r.Layer, &r.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		if r.CheckedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentLogins returns up to limit login attempts, newest first.
func (h *History) RecentLogins(ctx context.Context, limit int) ([]LoginRecord, error) {
	rows, err := h.db.SQL().QueryContext(ctx,
		"SELECT id, username, attempt, success, reason, attempted_at FROM login_attempts ORDER BY attempted_at DESC, attempt DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query login attempts: %w", err)
	}
	defer rows.Close()

	var out []LoginRecord
	for rows.Next() {
		var (
			r  LoginRecord
			at string
		)
		if err := rows.Scan(&r.ID, &r.Username, &r.Attempt, &r.Success, &r.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan login attempt: %w", err)
		}
		if r.AttemptedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentOutages returns up to limit outages, newest first.
func (h *History) RecentOutages(ctx context.Context, limit int) ([]Outage, error) {
	rows, err := h.db.SQL().QueryContext(ctx,
		"SELECT id, started_at, ended_at, failures FROM outages ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outages: %w", err)
	}
	defer rows.Close()

	var out []Outage
	for rows.Next() {
		var (
			o       Outage
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&o.ID, &started, &ended, &o.Failures); err != nil {
			return nil, fmt.Errorf("scan outage: %w", err)
		}
		if o.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if ended.Valid {
			if o.EndedAt, err = parseTime(ended.String); err != nil {
				return nil, err
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Subscriber is the subscribing side of the event bus.
type Subscriber interface {
	SubscribeAll(handler event.Handler) (unsubscribe func())
}

// Subscribe records bus events as they are published. Write failures are
// logged and dropped so history never stalls the daemon.
func (h *History) Subscribe(bus Subscriber) (unsubscribe func()) {
	return bus.SubscribeAll(h.handle)
}

func (h *History) handle(ctx context.Context, e event.Event) {
	var err error
	switch p := e.Payload.(type) {
	case event.CheckCompleted:
		err = h.RecordCheck(ctx, CheckRecord{
			ID:        e.ID,
			Reachable: p.Reachable,
			Layer:     p.Layer,
			Detail:    p.Detail,
			CheckedAt: e.Timestamp,
		})
	case event.LoginAttempt:
		err = h.RecordLogin(ctx, LoginRecord{
			ID:          e.ID,
			Username:    p.Username,
			Attempt:     p.Attempt,
			Success:     p.Success,
			Reason:      p.Reason,
			AttemptedAt: e.Timestamp,
		})
	case event.ConnectivityLost:
		err = h.BeginOutage(ctx, e.Timestamp, p.ConsecutiveFailures)
	case event.ConnectivityRestored:
		err = h.EndOutage(ctx, e.Timestamp)
	default:
		return
	}
	if err != nil {
		h.logger.Warn("failed to record history", zap.String("topic", e.Topic), zap.Error(err))
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
