package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound means no ingestion exists with the requested ID.
var ErrNotFound = errors.New("ingestion not found")

// Store records ingestion attempts and their transitions in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const attemptColumns = "id, meme_key, category, requester, conversation, source, replaces_existing, status, asset, error_message, created_at, updated_at"

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Start inserts a new attempt and its initial transition.
func (s *Store) Start(ctx context.Context, a Attempt) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("ingestion id is required")
	}
	if a.Status == "" {
		a.Status = StatusAwaitingUpload
	}
	if a.Source == "" {
		a.Source = SourceChat
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin start tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ingestions (
                id, meme_key, category, requester, conversation, source,
                replaces_existing, status, asset, error_message, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Key, a.Category, a.Requester, a.Conversation, string(a.Source),
			boolToInt(a.Replace), string(a.Status), a.Asset, a.ErrorMessage, timestamp, timestamp,
		); err != nil {
			return fmt.Errorf("insert ingestion: %w", err)
		}
		if err := insertTransition(ctx, tx, a.ID, a.Status, "", timestamp); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Transition moves an attempt to status. detail is stored on the transition
// and, for failures, as the attempt's error message. asset is recorded when
// non-empty.
func (s *Store) Transition(ctx context.Context, id string, status Status, asset, detail string) error {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		errorMessage := ""
		if status == StatusFailed || status == StatusExpired {
			errorMessage = detail
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE ingestions
                SET status = ?,
                    asset = CASE WHEN ? <> '' THEN ? ELSE asset END,
                    error_message = ?,
                    updated_at = ?
              WHERE id = ?`,
			string(status), asset, asset, errorMessage, timestamp, id,
		)
		if err != nil {
			return fmt.Errorf("update ingestion: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := insertTransition(ctx, tx, id, status, detail, timestamp); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Get fetches an attempt by ID.
func (s *Store) Get(ctx context.Context, id string) (Attempt, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM ingestions WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get ingestion: %w", err)
	}
	return a, nil
}

// Transitions returns the recorded transitions of an attempt, oldest first.
func (s *Store) Transitions(ctx context.Context, id string) ([]Transition, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, detail, at FROM transitions WHERE ingestion_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			status string
			tr     Transition
			atRaw  string
		)
		if err := rows.Scan(&status, &tr.Detail, &atRaw); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Status = Status(status)
		tr.At = parseTime(atRaw)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Recent lists the newest attempts, optionally filtered by status.
func (s *Store) Recent(ctx context.Context, limit int, statuses ...Status) ([]Attempt, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + attemptColumns + ` FROM ingestions`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ingestions: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats counts attempts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM ingestions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// FailInFlight marks every non-terminal attempt as failed with reason.
// The daemon calls it at startup because in-flight ingestions do not survive
// a restart.
func (s *Store) FailInFlight(ctx context.Context, reason string) (int64, error) {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin recovery tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		inFlight := []any{
			string(StatusAwaitingUpload),
			string(StatusDownloading),
			string(StatusTranscoding),
			string(StatusRegistering),
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transitions (ingestion_id, status, detail, at)
             SELECT id, ?, ?, ? FROM ingestions WHERE status IN (?, ?, ?, ?)`,
			append([]any{string(StatusFailed), reason, timestamp}, inFlight...)...,
		); err != nil {
			return fmt.Errorf("record recovery transitions: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE ingestions SET status = ?, error_message = ?, updated_at = ?
              WHERE status IN (?, ?, ?, ?)`,
			append([]any{string(StatusFailed), reason, timestamp}, inFlight...)...,
		)
		if err != nil {
			return fmt.Errorf("fail in-flight ingestions: %w", err)
		}
		affected, _ = res.RowsAffected()
		return tx.Commit()
	})
	return affected, err
}

// Prune deletes terminal attempts created before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM ingestions WHERE created_at < ? AND status IN (?, ?, ?)`,
			cutoff.UTC().Format(time.RFC3339Nano),
			string(StatusDone), string(StatusFailed), string(StatusExpired),
		)
		if err != nil {
			return fmt.Errorf("prune ingestions: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

func insertTransition(ctx context.Context, tx *sql.Tx, id string, status Status, detail, timestamp string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (ingestion_id, status, detail, at) VALUES (?, ?, ?, ?)`,
		id, string(status), detail, timestamp,
	); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (Attempt, error) {
	var (
		a          Attempt
		source     string
		replace    int
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&a.ID,
		&a.Key,
		&a.Category,
		&a.Requester,
		&a.Conversation,
		&source,
		&replace,
		&status,
		&a.Asset,
		&a.ErrorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return Attempt{}, err
	}
	a.Source = Source(source)
	a.Replace = replace != 0
	a.Status = Status(status)
	a.CreatedAt = parseTime(createdRaw)
	a.UpdatedAt = parseTime(updatedRaw)
	return a, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
