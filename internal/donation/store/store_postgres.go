package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	campaignModels "fundly/internal/campaign/models"
	"fundly/internal/donation/models"
	donorModels "fundly/internal/donor/models"
	"fundly/internal/platform/postgres"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
)

const donationColumns = `id, project_id, donor_id, amount, method, status, reference,
receipt_attachment, is_anonymous, failure_reason, created_at, updated_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, d *models.Donation) error {
	_, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
INSERT INTO donations (`+donationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`, uuid.UUID(d.ID), uuid.UUID(d.ProjectID), donorArg(d.DonorID), d.Amount, d.Method.String(),
		d.Status.String(), nullable(d.Reference), nullable(d.ReceiptAttachment), d.IsAnonymous,
		nullable(d.FailureReason), d.Date, d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("donation %s: %w", d.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, donationID id.DonationID) (*models.Donation, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(donationID))
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (*models.Donation, error) {
	return s.findOne(ctx, `WHERE reference = $1`, reference)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Donation, error) {
	row := postgres.Conn(ctx, s.pool).QueryRow(ctx, `SELECT `+donationColumns+` FROM donations `+where, arg)
	d, err := scanDonation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find donation: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *models.Donation) error {
	tag, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
UPDATE donations
SET status = $2, receipt_attachment = $3, failure_reason = $4, updated_at = $5
WHERE id = $1;
`, uuid.UUID(d.ID), d.Status.String(), nullable(d.ReceiptAttachment), nullable(d.FailureReason), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update donation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Donation, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProjectID != nil {
		args = append(args, uuid.UUID(*filter.ProjectID))
		conds = append(conds, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.DonorID != nil {
		args = append(args, uuid.UUID(*filter.DonorID))
		conds = append(conds, fmt.Sprintf("donor_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status.String())
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + donationColumns + ` FROM donations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := postgres.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Donation, 0)
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ProjectFunding(ctx context.Context, projectID id.ProjectID) (campaignModels.Funding, error) {
	var funding campaignModels.Funding
	err := postgres.Conn(ctx, s.pool).QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0)::BIGINT,
       COUNT(DISTINCT donor_id) FILTER (WHERE NOT is_anonymous)
FROM donations
WHERE project_id = $1 AND status = 'verified';
`, uuid.UUID(projectID)).Scan(&funding.RaisedAmount, &funding.DonorsCount)
	if err != nil {
		return campaignModels.Funding{}, fmt.Errorf("aggregate project funding: %w", err)
	}
	return funding, nil
}

func (s *PostgresStore) DonorTotals(ctx context.Context, donorID id.DonorID) (donorModels.Totals, error) {
	var totals donorModels.Totals
	err := postgres.Conn(ctx, s.pool).QueryRow(ctx, `
SELECT COALESCE(SUM(amount) FILTER (WHERE status = 'verified'), 0)::BIGINT,
       COUNT(*) FILTER (WHERE status <> 'failed')
FROM donations
WHERE donor_id = $1;
`, uuid.UUID(donorID)).Scan(&totals.TotalDonated, &totals.DonationCount)
	if err != nil {
		return donorModels.Totals{}, fmt.Errorf("aggregate donor totals: %w", err)
	}
	return totals, nil
}

func scanDonation(row pgx.Row) (*models.Donation, error) {
	var (
		rawID, projectID      uuid.UUID
		donorID               *uuid.UUID
		method, status        string
		reference, attachment *string
		failureReason         *string
		d                     models.Donation
	)
	if err := row.Scan(&rawID, &projectID, &donorID, &d.Amount, &method, &status, &reference,
		&attachment, &d.IsAnonymous, &failureReason, &d.Date, &d.UpdatedAt); err != nil {
		return nil, err
	}
	var ok bool
	if d.Method, ok = models.ParsePaymentMethod(method); !ok {
		return nil, fmt.Errorf("donation %s has unknown method %q: %w", rawID, method, sentinel.ErrInvalidState)
	}
	if d.Status, ok = models.ParseDonationStatus(status); !ok {
		return nil, fmt.Errorf("donation %s has unknown status %q: %w", rawID, status, sentinel.ErrInvalidState)
	}
	d.ID = id.DonationID(rawID)
	d.ProjectID = id.ProjectID(projectID)
	if donorID != nil {
		did := id.DonorID(*donorID)
		d.DonorID = &did
	}
	d.Reference = deref(reference)
	d.ReceiptAttachment = deref(attachment)
	d.FailureReason = deref(failureReason)
	return &d, nil
}

func donorArg(donorID *id.DonorID) any {
	if donorID == nil {
		return nil
	}
	return uuid.UUID(*donorID)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
