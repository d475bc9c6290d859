package party

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"registra/internal/identity/models"
	"registra/internal/platform/postgres"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
	txcontext "registra/pkg/platform/tx"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) runner(ctx context.Context) runner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, p *models.Party) error {
	_, err := s.runner(ctx).ExecContext(ctx, `
		INSERT INTO parties (id, class, party_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, string(p.Class), string(p.Type), p.CreatedAt, p.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert party: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.PartyID) (*models.Party, error) {
	var p models.Party
	err := s.runner(ctx).QueryRowContext(ctx, `
		SELECT id, class, party_type, deleted_at, created_at, updated_at
		FROM parties
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&p.ID, &p.Class, &p.Type, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find party: %w", err)
	}
	return &p, nil
}
