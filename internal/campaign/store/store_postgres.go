package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundly/internal/campaign/models"
	"fundly/internal/platform/postgres"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
)

const projectColumns = `id, title, goal_amount, raised_amount, donors_count, status, end_date, created_at, updated_at`

// PostgresStore persists projects in PostgreSQL. Deletion is soft so that
// donation history keeps resolving.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Project) error {
	_, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
INSERT INTO projects (`+projectColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`, uuid.UUID(p.ID), p.Title, p.GoalAmount, p.RaisedAmount(), p.DonorsCount(),
		p.Status.String(), p.EndDate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("project %s: %w", p.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	row := postgres.Conn(ctx, s.pool).QueryRow(ctx, `
SELECT `+projectColumns+`
FROM projects
WHERE id = $1 AND deleted_at IS NULL;
`, uuid.UUID(projectID))
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := postgres.Conn(ctx, s.pool).Query(ctx, `
SELECT `+projectColumns+`
FROM projects
WHERE deleted_at IS NULL
ORDER BY created_at;
`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Project) error {
	tag, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
UPDATE projects
SET title = $2, goal_amount = $3, raised_amount = $4, donors_count = $5,
    status = $6, end_date = $7, updated_at = $8
WHERE id = $1 AND deleted_at IS NULL;
`, uuid.UUID(p.ID), p.Title, p.GoalAmount, p.RaisedAmount(), p.DonorsCount(),
		p.Status.String(), p.EndDate, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, projectID id.ProjectID, deletedAt time.Time) error {
	tag, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
UPDATE projects SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL;
`, uuid.UUID(projectID), deletedAt)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Exclusive runs fn in a transaction holding the project's row lock, so
// writers in other processes sharing the database wait for it. Reads and
// writes made through ctx inside fn join the transaction. A missing project
// takes no lock; fn then sees it as not found.
func (s *PostgresStore) Exclusive(ctx context.Context, projectID id.ProjectID, fn func(ctx context.Context) error) error {
	return postgres.InTx(ctx, s.pool, func(ctx context.Context) error {
		rows, err := postgres.Conn(ctx, s.pool).Query(ctx, `
SELECT id FROM projects WHERE id = $1 FOR UPDATE;
`, uuid.UUID(projectID))
		if err != nil {
			return fmt.Errorf("lock project: %w", err)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("lock project: %w", err)
		}
		return fn(ctx)
	})
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var (
		rawID   uuid.UUID
		p       models.Project
		funding models.Funding
		status  string
	)
	if err := row.Scan(&rawID, &p.Title, &p.GoalAmount, &funding.RaisedAmount, &funding.DonorsCount,
		&status, &p.EndDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, ok := models.ParseProjectStatus(status)
	if !ok {
		return nil, fmt.Errorf("project %s has unknown status %q: %w", rawID, status, sentinel.ErrInvalidState)
	}
	p.ID = id.ProjectID(rawID)
	p.Status = parsed
	return models.RestoreProject(p, funding), nil
}
