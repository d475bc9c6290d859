package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"registra/internal/access/models"
	"registra/internal/platform/postgres"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
	txcontext "registra/pkg/platform/tx"
)

const grantColumns = `id, request_id, endpoint_id, consumer_id, scopes,
	credential_ref, active, revoked_at, revoked_reason, created_at, updated_at`

type Postgres struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:     db,
		tracer: otel.Tracer("registra.access.store"),
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

func (s *Postgres) Create(ctx context.Context, g *models.ConsumerGrant) error {
	ctx, span := s.tracer.Start(ctx, "grant.Create")
	defer span.End()

	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO consumer_grants (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.RequestID, g.EndpointID, g.ConsumerID, pq.Array(g.Scopes),
		g.CredentialRef, g.Active, g.RevokedAt, g.RevokedReason,
		g.CreatedAt, g.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert consumer grant: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.GrantID) (*models.ConsumerGrant, error) {
	ctx, span := s.tracer.Start(ctx, "grant.FindByID")
	defer span.End()

	row := s.runner(ctx).QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM consumer_grants
		WHERE id = $1`,
		id,
	)
	g, err := scanGrant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return g, err
}

func (s *Postgres) Update(ctx context.Context, g *models.ConsumerGrant) error {
	ctx, span := s.tracer.Start(ctx, "grant.Update")
	defer span.End()

	res, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE consumer_grants
		SET credential_ref = $2, active = $3, revoked_at = $4,
		    revoked_reason = $5, updated_at = $6
		WHERE id = $1`,
		g.ID, g.CredentialRef, g.Active, g.RevokedAt, g.RevokedReason, g.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update consumer grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consumer grant: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByConsumer(ctx context.Context, consumerID domain.EntityID) ([]models.ConsumerGrant, error) {
	return s.list(ctx, "grant.ListByConsumer", `
		SELECT `+grantColumns+`
		FROM consumer_grants
		WHERE consumer_id = $1
		ORDER BY created_at`, consumerID)
}

func (s *Postgres) ListActiveByConsumer(ctx context.Context, consumerID domain.EntityID) ([]models.ConsumerGrant, error) {
	return s.list(ctx, "grant.ListActiveByConsumer", `
		SELECT `+grantColumns+`
		FROM consumer_grants
		WHERE consumer_id = $1 AND active
		ORDER BY created_at`, consumerID)
}

func (s *Postgres) ListActiveByEndpoint(ctx context.Context, endpointID domain.EndpointID) ([]models.ConsumerGrant, error) {
	return s.list(ctx, "grant.ListActiveByEndpoint", `
		SELECT `+grantColumns+`
		FROM consumer_grants
		WHERE endpoint_id = $1 AND active
		ORDER BY created_at`, endpointID)
}

func (s *Postgres) list(ctx context.Context, span string, query string, arg any) ([]models.ConsumerGrant, error) {
	ctx, sp := s.tracer.Start(ctx, span)
	defer sp.End()

	rows, err := s.runner(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		sp.RecordError(err)
		return nil, fmt.Errorf("list consumer grants: %w", err)
	}
	defer rows.Close()

	var out []models.ConsumerGrant
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consumer grants: %w", err)
	}
	return out, nil
}

func scanGrant(scan func(dest ...any) error) (*models.ConsumerGrant, error) {
	var g models.ConsumerGrant
	err := scan(&g.ID, &g.RequestID, &g.EndpointID, &g.ConsumerID,
		pq.Array(&g.Scopes), &g.CredentialRef, &g.Active, &g.RevokedAt,
		&g.RevokedReason, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan consumer grant: %w", err)
	}
	return &g, nil
}
