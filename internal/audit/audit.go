package audit

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	KindUnlock          Kind = "unlock"
	KindUnlockFailed    Kind = "unlock_failed"
	KindLock            Kind = "lock"
	KindAccountAdded    Kind = "account_added"
	KindAccountUpdated  Kind = "account_updated"
	KindAccountRemoved  Kind = "account_removed"
	KindExport          Kind = "export"
	KindImport          Kind = "import"
	KindPasswordChanged Kind = "password_changed"
	KindVaultMigrated   Kind = "vault_migrated"
	KindVaultReloaded   Kind = "vault_reloaded"
)

// Event is one log entry.
type Event struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Kind    Kind      `json:"kind"`
	Account string    `json:"account,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Log is what the vault service records events into. Consumers depend on
// this interface rather than *DB so a no-op log can be used.
type Log interface {
	Record(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Verify *DB satisfies Log at compile time.
var _ Log = (*DB)(nil)

// Record appends e. A zero At is stamped with the current time.
func (db *DB) Record(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (at, kind, account, detail) VALUES (?, ?, ?, ?)`,
		e.At.UTC(), string(e.Kind), e.Account, e.Detail)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, at, kind, account, detail FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &e.At, &kind, &e.Account, &e.Detail); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Discard is a Log that keeps nothing.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }

func (Discard) Recent(context.Context, int) ([]Event, error) { return []Event{}, nil }
