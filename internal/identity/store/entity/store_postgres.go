package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"registra/internal/identity/models"
	"registra/internal/platform/postgres"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
	txcontext "registra/pkg/platform/tx"
)

const entityColumns = `id, party_id, legal_name, address, domain, status,
	membership_level, auth_tier, auth_method, dns_verified_at, reverify_due_at,
	deleted_at, created_at, updated_at`

type Postgres struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:     db,
		tracer: otel.Tracer("registra.identity.store"),
	}
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) runner(ctx context.Context) runner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, e *models.LegalEntity) error {
	ctx, span := s.tracer.Start(ctx, "entity.Create",
		trace.WithAttributes(attribute.String("entity.id", e.ID.String())))
	defer span.End()

	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO legal_entities (`+entityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.PartyID, e.LegalName, e.Address, e.Domain, string(e.Status),
		string(e.MembershipLevel), int(e.AuthTier), string(e.AuthMethod),
		e.DNSVerifiedAt, e.ReverifyDueAt, e.DeletedAt, e.CreatedAt, e.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert legal entity: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.EntityID) (*models.LegalEntity, error) {
	ctx, span := s.tracer.Start(ctx, "entity.FindByID")
	defer span.End()

	row := s.runner(ctx).QueryRowContext(ctx, `
		SELECT `+entityColumns+`
		FROM legal_entities
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	return scanEntity(row)
}

func (s *Postgres) FindLiveByPartyID(ctx context.Context, partyID domain.PartyID) (*models.LegalEntity, error) {
	ctx, span := s.tracer.Start(ctx, "entity.FindLiveByPartyID")
	defer span.End()

	row := s.runner(ctx).QueryRowContext(ctx, `
		SELECT `+entityColumns+`
		FROM legal_entities
		WHERE party_id = $1 AND deleted_at IS NULL`,
		partyID,
	)
	return scanEntity(row)
}

func (s *Postgres) Update(ctx context.Context, e *models.LegalEntity) error {
	ctx, span := s.tracer.Start(ctx, "entity.Update",
		trace.WithAttributes(attribute.String("entity.id", e.ID.String())))
	defer span.End()

	res, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE legal_entities
		SET legal_name = $2, address = $3, domain = $4, status = $5,
		    membership_level = $6, auth_tier = $7, auth_method = $8,
		    dns_verified_at = $9, reverify_due_at = $10, deleted_at = $11,
		    updated_at = $12
		WHERE id = $1`,
		e.ID, e.LegalName, e.Address, e.Domain, string(e.Status),
		string(e.MembershipLevel), int(e.AuthTier), string(e.AuthMethod),
		e.DNSVerifiedAt, e.ReverifyDueAt, e.DeletedAt, e.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update legal entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update legal entity: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListDueForReverification(ctx context.Context, now time.Time) ([]models.LegalEntity, error) {
	ctx, span := s.tracer.Start(ctx, "entity.ListDueForReverification")
	defer span.End()

	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+entityColumns+`
		FROM legal_entities
		WHERE deleted_at IS NULL
		  AND auth_method = 'DomainVerification'
		  AND reverify_due_at IS NOT NULL
		  AND reverify_due_at <= $1`,
		now,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list entities due for reverification: %w", err)
	}
	defer rows.Close()

	var due []models.LegalEntity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities due for reverification: %w", err)
	}
	return due, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row *sql.Row) (*models.LegalEntity, error) {
	e, err := scanEntityRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return e, err
}

func scanEntityRow(row rowScanner) (*models.LegalEntity, error) {
	var e models.LegalEntity
	err := row.Scan(
		&e.ID, &e.PartyID, &e.LegalName, &e.Address, &e.Domain, &e.Status,
		&e.MembershipLevel, &e.AuthTier, &e.AuthMethod,
		&e.DNSVerifiedAt, &e.ReverifyDueAt, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan legal entity: %w", err)
	}
	return &e, nil
}
