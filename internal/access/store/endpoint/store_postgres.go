package endpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"registra/internal/access/models"
	"registra/internal/platform/postgres"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
	txcontext "registra/pkg/platform/tx"
)

const endpointColumns = `id, entity_id, name, url, endpoint_type,
	publication_status, access_model, published_at, active, deleted_at,
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

func (s *Postgres) Create(ctx context.Context, e *models.Endpoint) error {
	ctx, span := s.tracer.Start(ctx, "endpoint.Create")
	defer span.End()

	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO endpoints (`+endpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.EntityID, e.Name, e.URL, string(e.Type),
		string(e.PublicationStatus), string(e.AccessModel), e.PublishedAt,
		e.Active, e.DeletedAt, e.CreatedAt, e.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.EndpointID) (*models.Endpoint, error) {
	ctx, span := s.tracer.Start(ctx, "endpoint.FindByID")
	defer span.End()

	var e models.Endpoint
	err := s.runner(ctx).QueryRowContext(ctx, `
		SELECT `+endpointColumns+`
		FROM endpoints
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&e.ID, &e.EntityID, &e.Name, &e.URL, &e.Type,
		&e.PublicationStatus, &e.AccessModel, &e.PublishedAt,
		&e.Active, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find endpoint: %w", err)
	}
	return &e, nil
}

func (s *Postgres) ListByEntity(ctx context.Context, entityID domain.EntityID) ([]models.Endpoint, error) {
	ctx, span := s.tracer.Start(ctx, "endpoint.ListByEntity")
	defer span.End()

	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT `+endpointColumns+`
		FROM endpoints
		WHERE entity_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`,
		entityID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []models.Endpoint
	for rows.Next() {
		var e models.Endpoint
		if err := rows.Scan(&e.ID, &e.EntityID, &e.Name, &e.URL, &e.Type,
			&e.PublicationStatus, &e.AccessModel, &e.PublishedAt,
			&e.Active, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return out, nil
}

func (s *Postgres) Update(ctx context.Context, e *models.Endpoint) error {
	ctx, span := s.tracer.Start(ctx, "endpoint.Update")
	defer span.End()

	res, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE endpoints
		SET name = $2, url = $3, publication_status = $4, published_at = $5,
		    active = $6, deleted_at = $7, updated_at = $8
		WHERE id = $1`,
		e.ID, e.Name, e.URL, string(e.PublicationStatus), e.PublishedAt,
		e.Active, e.DeletedAt, e.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update endpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
