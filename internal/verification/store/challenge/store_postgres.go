package challenge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"registra/internal/platform/postgres"
	"registra/internal/verification/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
	txcontext "registra/pkg/platform/tx"
)

const challengeColumns = `id, entity_id, domain, token_hash, record_name, status,
	attempts, expires_at, created_at, updated_at`

type Postgres struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:     db,
		tracer: otel.Tracer("registra.verification.store"),
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

func (s *Postgres) Create(ctx context.Context, c *models.DomainVerificationChallenge) error {
	ctx, span := s.tracer.Start(ctx, "challenge.Create")
	defer span.End()

	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO domain_challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.EntityID, c.Domain, c.TokenHash, c.RecordName, string(c.Status),
		c.Attempts, c.ExpiresAt, c.CreatedAt, c.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert domain challenge: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.ChallengeID) (*models.DomainVerificationChallenge, error) {
	ctx, span := s.tracer.Start(ctx, "challenge.FindByID")
	defer span.End()

	var c models.DomainVerificationChallenge
	err := s.runner(ctx).QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM domain_challenges
		WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.EntityID, &c.Domain, &c.TokenHash, &c.RecordName, &c.Status,
		&c.Attempts, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find domain challenge: %w", err)
	}
	return &c, nil
}

func (s *Postgres) Update(ctx context.Context, c *models.DomainVerificationChallenge) error {
	ctx, span := s.tracer.Start(ctx, "challenge.Update")
	defer span.End()

	res, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE domain_challenges
		SET status = $2, attempts = $3, updated_at = $4
		WHERE id = $1`,
		c.ID, string(c.Status), c.Attempts, c.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update domain challenge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update domain challenge: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListExpiredPending(ctx context.Context, now time.Time) ([]models.DomainVerificationChallenge, error) {
	ctx, span := s.tracer.Start(ctx, "challenge.ListExpiredPending")
	defer span.End()

	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+challengeColumns+`
		FROM domain_challenges
		WHERE status = 'pending' AND expires_at <= $1`,
		now,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list expired challenges: %w", err)
	}
	defer rows.Close()

	var expired []models.DomainVerificationChallenge
	for rows.Next() {
		var c models.DomainVerificationChallenge
		if err := rows.Scan(&c.ID, &c.EntityID, &c.Domain, &c.TokenHash, &c.RecordName,
			&c.Status, &c.Attempts, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan domain challenge: %w", err)
		}
		expired = append(expired, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired challenges: %w", err)
	}
	return expired, nil
}
