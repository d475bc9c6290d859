package request

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

const requestColumns = `id, endpoint_id, consumer_id, requested_scopes,
	approved_scopes, status, decided_by, decided_at, denial_reason,
	created_at, updated_at`

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

func (s *Postgres) Create(ctx context.Context, r *models.AccessRequest) error {
	ctx, span := s.tracer.Start(ctx, "request.Create")
	defer span.End()

	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO access_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.EndpointID, r.ConsumerID, pq.Array(r.RequestedScopes),
		pq.Array(r.ApprovedScopes), string(r.Status), r.DecidedBy, r.DecidedAt,
		r.DenialReason, r.CreatedAt, r.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.RequestID) (*models.AccessRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.FindByID")
	defer span.End()

	row := s.runner(ctx).QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE id = $1`,
		id,
	)
	r, err := scanRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return r, err
}

func (s *Postgres) Update(ctx context.Context, r *models.AccessRequest) error {
	ctx, span := s.tracer.Start(ctx, "request.Update")
	defer span.End()

	res, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE access_requests
		SET approved_scopes = $2, status = $3, decided_by = $4, decided_at = $5,
		    denial_reason = $6, updated_at = $7
		WHERE id = $1`,
		r.ID, pq.Array(r.ApprovedScopes), string(r.Status), r.DecidedBy,
		r.DecidedAt, r.DenialReason, r.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update access request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update access request: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByEndpoint(ctx context.Context, endpointID domain.EndpointID) ([]models.AccessRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.ListByEndpoint")
	defer span.End()

	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE endpoint_id = $1
		ORDER BY created_at`,
		endpointID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	var out []models.AccessRequest
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	return out, nil
}

func (s *Postgres) ListPendingByConsumer(ctx context.Context, consumerID domain.EntityID) ([]models.AccessRequest, error) {
	ctx, span := s.tracer.Start(ctx, "request.ListPendingByConsumer")
	defer span.End()

	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE consumer_id = $1 AND status = 'pending'
		ORDER BY created_at`,
		consumerID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list pending access requests: %w", err)
	}
	defer rows.Close()

	var out []models.AccessRequest
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending access requests: %w", err)
	}
	return out, nil
}

func scanRequest(scan func(dest ...any) error) (*models.AccessRequest, error) {
	var r models.AccessRequest
	err := scan(&r.ID, &r.EndpointID, &r.ConsumerID,
		pq.Array(&r.RequestedScopes), pq.Array(&r.ApprovedScopes),
		&r.Status, &r.DecidedBy, &r.DecidedAt, &r.DenialReason,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan access request: %w", err)
	}
	return &r, nil
}
