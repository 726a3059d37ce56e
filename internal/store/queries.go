package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// RecordOutcome stores a removal and its trace lines. Recording the same ID
// twice replaces the earlier entry.
func (s *Store) RecordOutcome(r *Removal) error {
	if r.ID == "" {
		return fmt.Errorf("removal id cannot be empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO removals
		(id, package, purge, remove_dependents, state, path, message, backend_url, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Package,
		r.Purge,
		r.RemoveDependents,
		r.State,
		r.Path,
		r.Message,
		r.BackendURL,
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
	)
	if err != nil {
		return wrapQueryErr("insert removal "+r.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM removal_trace WHERE removal_id = ?", r.ID); err != nil {
		return wrapQueryErr("clear trace for "+r.ID, err)
	}
	for i, line := range r.Trace {
		if _, err := tx.Exec("INSERT INTO removal_trace (removal_id, seq, line) VALUES (?, ?, ?)", r.ID, i, line); err != nil {
			return wrapQueryErr("insert trace for "+r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal %s: %w", r.ID, err)
	}
	return nil
}

// ListRemovals returns journaled removals, newest first. Trace lines are
// not loaded.
func (s *Store) ListRemovals(f RemovalFilter) ([]*Removal, error) {
	query := `
		SELECT id, package, purge, remove_dependents, state, path, message, backend_url, started_at, finished_at
		FROM removals
	`
	var (
		where []string
		args  []interface{}
	)
	if f.Package != "" {
		where = append(where, "package = ?")
		args = append(args, f.Package)
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, f.State)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapQueryErr("list removals", err)
	}
	defer rows.Close()

	var removals []*Removal
	for rows.Next() {
		r, err := scanRemoval(rows)
		if err != nil {
			return nil, err
		}
		removals = append(removals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate removals: %w", err)
	}
	return removals, nil
}

// GetRemoval retrieves a removal and its trace by ID. A unique ID prefix
// is accepted as well.
func (s *Store) GetRemoval(id string) (*Removal, error) {
	if id == "" {
		return nil, fmt.Errorf("removal id cannot be empty")
	}

	rows, err := s.db.Query(`
		SELECT id, package, purge, remove_dependents, state, path, message, backend_url, started_at, finished_at
		FROM removals
		WHERE id = ? OR id LIKE ? ESCAPE '\'
		ORDER BY id = ? DESC
		LIMIT 2
	`, id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, wrapQueryErr("get removal "+id, err)
	}

	var matches []*Removal
	for rows.Next() {
		r, err := scanRemoval(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matches = append(matches, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get removal %s: %w", id, err)
	}

	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("removal %s not found", id)
	case len(matches) > 1 && matches[0].ID != id:
		return nil, fmt.Errorf("removal id %s is ambiguous", id)
	}
	r := matches[0]

	trace, err := s.db.Query("SELECT line FROM removal_trace WHERE removal_id = ? ORDER BY seq", r.ID)
	if err != nil {
		return nil, wrapQueryErr("get trace for "+r.ID, err)
	}
	defer trace.Close()
	for trace.Next() {
		var line string
		if err := trace.Scan(&line); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		r.Trace = append(r.Trace, line)
	}
	if err := trace.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trace: %w", err)
	}
	return r, nil
}

// DeleteRemovalsBefore prunes journal entries that finished before cutoff
// and returns how many were removed.
func (s *Store) DeleteRemovalsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM removals WHERE finished_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, wrapQueryErr("prune removals", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned removals: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRemoval(row scanner) (*Removal, error) {
	var (
		r                     Removal
		path, msg, backendURL sql.NullString
		startedAt, finishedAt string
	)
	err := row.Scan(
		&r.ID,
		&r.Package,
		&r.Purge,
		&r.RemoveDependents,
		&r.State,
		&path,
		&msg,
		&backendURL,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan removal: %w", err)
	}
	r.Path = path.String
	r.Message = msg.String
	r.BackendURL = backendURL.String

	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at for %s: %w", r.ID, err)
	}
	if r.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, fmt.Errorf("failed to parse finished_at for %s: %w", r.ID, err)
	}
	return &r, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
