// Package postgres persists the audit log. Appends run on the transaction
// carried by the caller's context when present, so an event commits or
// aborts with the state transition that produced it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"registra/internal/audit"
	"registra/pkg/platform/sentinel"
	txcontext "registra/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) runner(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var detail []byte
	if event.Detail != nil {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO audit_events
			(id, event_type, severity, actor, resource_type, resource_id,
			 action, result, detail, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, string(event.Type), string(event.Severity), event.Actor,
		event.ResourceType, event.ResourceID, event.Action, event.Result,
		detail, event.ErrorMessage, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByResource(ctx context.Context, resourceType, resourceID string) ([]audit.Event, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT id, event_type, severity, actor, resource_type, resource_id,
		       action, result, detail, error_message, created_at
		FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at`,
		resourceType, resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e      audit.Event
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Severity, &e.Actor,
			&e.ResourceType, &e.ResourceID, &e.Action, &e.Result,
			&detail, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.runner(ctx).ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit events: %w", err)
	}
	return res.RowsAffected()
}

// MappingStore persists the pseudonym reverse mapping in its own table so
// audit reads never join against raw PII.
type MappingStore struct {
	db *sql.DB
}

func NewMappingStore(db *sql.DB) *MappingStore {
	return &MappingStore{db: db}
}

func (s *MappingStore) runner(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *MappingStore) Save(ctx context.Context, digest, rawValue string) error {
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO pseudonym_mappings (digest, raw_value, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (digest) DO NOTHING`,
		digest, rawValue,
	)
	if err != nil {
		return fmt.Errorf("save pseudonym mapping: %w", err)
	}
	return nil
}

func (s *MappingStore) Find(ctx context.Context, digest string) (string, error) {
	var raw string
	err := s.runner(ctx).QueryRowContext(ctx,
		`SELECT raw_value FROM pseudonym_mappings WHERE digest = $1`, digest).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find pseudonym mapping: %w", err)
	}
	return raw, nil
}

func (s *MappingStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.runner(ctx).ExecContext(ctx,
		`DELETE FROM pseudonym_mappings WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge pseudonym mappings: %w", err)
	}
	return res.RowsAffected()
}
