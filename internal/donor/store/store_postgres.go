package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundly/internal/donor/models"
	"fundly/internal/platform/postgres"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
)

const donorColumns = `id, name, email, phone, country_code, total_donated, donation_count, member_since`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, d *models.Donor) error {
	_, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
INSERT INTO donors (`+donorColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`, uuid.UUID(d.ID), d.Name, d.Email, d.Phone, d.CountryCode, d.TotalDonated(), d.DonationCount(), d.MemberSince)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("donor %s: %w", d.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert donor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, donorID id.DonorID) (*models.Donor, error) {
	row := postgres.Conn(ctx, s.pool).QueryRow(ctx, `
SELECT `+donorColumns+` FROM donors WHERE id = $1;
`, uuid.UUID(donorID))
	d, err := scanDonor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find donor: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) FindByContact(ctx context.Context, info models.ContactInfo) (*models.Donor, error) {
	email := info.NormalizedEmail()
	phone := info.NormalizedPhone()
	row := postgres.Conn(ctx, s.pool).QueryRow(ctx, `
SELECT `+donorColumns+`
FROM donors
WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2)
ORDER BY member_since
LIMIT 1;
`, email, phone)
	d, err := scanDonor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find donor by contact: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *models.Donor) error {
	tag, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
UPDATE donors
SET name = $2, email = $3, phone = $4, country_code = $5, total_donated = $6, donation_count = $7
WHERE id = $1;
`, uuid.UUID(d.ID), d.Name, d.Email, d.Phone, d.CountryCode, d.TotalDonated(), d.DonationCount())
	if err != nil {
		return fmt.Errorf("update donor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Donor, error) {
	rows, err := postgres.Conn(ctx, s.pool).Query(ctx, `
SELECT `+donorColumns+` FROM donors ORDER BY member_since;
`)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	defer rows.Close()

	var out []*models.Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDonor(row pgx.Row) (*models.Donor, error) {
	var (
		rawID  uuid.UUID
		d      models.Donor
		totals models.Totals
	)
	if err := row.Scan(&rawID, &d.Name, &d.Email, &d.Phone, &d.CountryCode,
		&totals.TotalDonated, &totals.DonationCount, &d.MemberSince); err != nil {
		return nil, err
	}
	d.ID = id.DonorID(rawID)
	return models.RestoreDonor(d, totals), nil
}
