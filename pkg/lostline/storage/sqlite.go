// Package storage implements LostLine persistence on SQLite: the session
// store (one JSON document per identity) and the append-only lost_reports
// collection, plus the maintenance queries used by the scheduler.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.

	"github.com/mquintal/lostline/pkg/lostline/bot"
)

// Store is the SQLite-backed persistence layer. It implements
// bot.SessionPersister and bot.ReportWriter.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and creates, if needed) the database at path and runs the
// schema migration.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "storage")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for components that share the database
// file (e.g. the WhatsApp device store).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			identity        TEXT PRIMARY KEY,
			data            TEXT NOT NULL,
			display_name    TEXT NOT NULL DEFAULT '',
			flow            TEXT NOT NULL DEFAULT '',
			message_count   INTEGER NOT NULL DEFAULT 0,
			first_contact_at TEXT NOT NULL,
			last_message_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS lost_reports (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			identity    TEXT NOT NULL,
			reference   TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			name        TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			location    TEXT NOT NULL DEFAULT '',
			time_lost   TEXT NOT NULL DEFAULT '',
			images      TEXT NOT NULL DEFAULT '[]',
			status      TEXT NOT NULL,
			filed_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_lost_reports_status ON lost_reports(status);
	`)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ---------- bot.SessionPersister ----------

// Load reads the session for an identity. Returns (nil, nil) when absent.
func (s *Store) Load(ctx context.Context, identity string) (*bot.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE identity = ?`, identity).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var session bot.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", identity, err)
	}
	return &session, nil
}

// Save upserts the session document. The denormalized columns exist only for
// listings and maintenance queries.
func (s *Store) Save(ctx context.Context, session *bot.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (identity, data, display_name, flow, message_count, first_contact_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			data = excluded.data,
			display_name = excluded.display_name,
			flow = excluded.flow,
			message_count = excluded.message_count,
			last_message_at = excluded.last_message_at`,
		session.UserIdentity,
		string(data),
		session.DisplayName,
		string(session.Flow),
		len(session.History),
		session.FirstContactAt.UTC().Format(time.RFC3339),
		session.LastMessageAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", session.UserIdentity, err)
	}
	return nil
}

// List returns metadata for all sessions, most recently active first.
func (s *Store) List(ctx context.Context) ([]bot.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, display_name, flow, message_count, first_contact_at, last_message_at
		FROM sessions ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []bot.SessionMeta
	for rows.Next() {
		var (
			m           bot.SessionMeta
			flow        string
			first, last string
		)
		if err := rows.Scan(&m.Identity, &m.DisplayName, &flow, &m.MessageCount, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		m.Flow = bot.Flow(flow)
		m.FirstContact, _ = time.Parse(time.RFC3339, first)
		m.LastMessageAt, _ = time.Parse(time.RFC3339, last)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---------- bot.ReportWriter ----------

// WriteReport appends a finalized report to lost_reports. The filed-at
// timestamp is assigned here, not by the caller.
func (s *Store) WriteReport(ctx context.Context, identity string, report *bot.LostItemReport) error {
	images, err := json.Marshal(report.Images)
	if err != nil {
		return fmt.Errorf("encoding report images: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lost_reports (identity, reference, description, name, phone, location, time_lost, images, status, filed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity,
		report.ReferenceNumber,
		report.Description,
		report.Name,
		report.Phone,
		report.Location,
		report.TimeLost,
		string(images),
		string(report.Status),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing report %s: %w", report.ReferenceNumber, err)
	}
	return nil
}

// FiledReport is one row of the lost_reports collection.
type FiledReport struct {
	ID        int64              `json:"id"`
	Identity  string             `json:"identity"`
	Reference string             `json:"reference"`
	Report    bot.LostItemReport `json:"report"`
	FiledAt   time.Time          `json:"filed_at"`
}

// ListReports returns filed reports, newest first.
func (s *Store) ListReports(ctx context.Context) ([]FiledReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity, reference, description, name, phone, location, time_lost, images, status, filed_at
		FROM lost_reports ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []FiledReport
	for rows.Next() {
		var (
			r       FiledReport
			images  string
			status  string
			filedAt string
		)
		if err := rows.Scan(&r.ID, &r.Identity, &r.Reference,
			&r.Report.Description, &r.Report.Name, &r.Report.Phone,
			&r.Report.Location, &r.Report.TimeLost, &images, &status, &filedAt); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		r.Report.ReferenceNumber = r.Reference
		r.Report.Status = bot.ReportStatus(status)
		_ = json.Unmarshal([]byte(images), &r.Report.Images)
		r.FiledAt, _ = time.Parse(time.RFC3339, filedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------- Maintenance ----------

// ExpirePendingReports marks PENDING reports filed before the cutoff as
// UNCLAIMED and returns how many were updated.
func (s *Store) ExpirePendingReports(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lost_reports SET status = ? WHERE status = ? AND filed_at < ?`,
		string(bot.StatusUnclaimed),
		string(bot.StatusPending),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring reports: %w", err)
	}
	return res.RowsAffected()
}

// PruneSessions deletes sessions idle since before the cutoff and returns
// how many were removed.
func (s *Store) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_message_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return res.RowsAffected()
}
