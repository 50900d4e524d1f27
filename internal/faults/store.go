package faults

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/sigslot/internal/signal"
)

// timeLayout is fixed width so occurred_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one persisted dispatch fault.
type Record struct {
	ID         string    `json:"id"`
	SignalID   string    `json:"signal_id"`
	SignalName string    `json:"signal_name,omitempty"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	Strategy   string    `json:"strategy"`
	Kind       string    `json:"kind"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store reads and writes the dispatch_faults table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts f and returns the new row ID.
func (s *Store) Record(ctx context.Context, f signal.Fault) (string, error) {
	id := uuid.NewString()
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}

	var receiver any
	if !f.Receiver.IsZero() {
		receiver = f.Receiver.String()
	}
	var name any
	if f.SignalName != "" {
		name = f.SignalName
	}
	errText := ""
	if f.Err != nil {
		errText = f.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_faults(id, signal_id, signal_name, receiver_id, strategy, kind, error, occurred_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, id, f.Signal.String(), name, receiver, f.Strategy.String(), signal.FaultKind(f.Err), errText, at.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("record fault: %w", err)
	}
	return id, nil
}

// List returns up to limit faults, newest first. A limit <= 0 means 100.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, signal_id, signal_name, receiver_id, strategy, kind, error, occurred_at
FROM dispatch_faults
ORDER BY occurred_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r          Record
			name       sql.NullString
			receiver   sql.NullString
			occurredAt string
		)
		if err := rows.Scan(&r.ID, &r.SignalID, &name, &receiver, &r.Strategy, &r.Kind, &r.Error, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		r.SignalName = name.String
		r.ReceiverID = receiver.String
		if t, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
			r.OccurredAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	return out, nil
}

// Count returns the number of stored faults.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_faults;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count faults: %w", err)
	}
	return n, nil
}

// Prune deletes faults older than olderThan and returns how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.pruneBefore(ctx, time.Now().Add(-olderThan))
}

func (s *Store) pruneBefore(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_faults WHERE occurred_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune faults: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
