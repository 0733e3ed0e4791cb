package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensify-backend/internal/domains/license/model"
	"licensify-backend/pkg/database"
)

type licenseRepository struct {
	pool *pgxpool.Pool
}

func NewLicenseRepository(pool *pgxpool.Pool) LicenseRepoInterface {
	return &licenseRepository{pool: pool}
}

func (r *licenseRepository) q(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const licenseColumns = `id, product_ref, license_key, status, order_id, reserved_at, sold_at, instructions, created_at`

func scanLicense(row pgx.Row) (*model.License, error) {
	lic := &model.License{}
	err := row.Scan(
		&lic.ID,
		&lic.ProductRef,
		&lic.LicenseKey,
		&lic.Status,
		&lic.OrderID,
		&lic.ReservedAt,
		&lic.SoldAt,
		&lic.Instructions,
		&lic.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return lic, nil
}

func (r *licenseRepository) Create(ctx context.Context, license *model.License) error {
	query := `
		INSERT INTO licenses (id, product_ref, license_key, status, instructions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q(ctx).Exec(ctx, query,
		license.ID,
		license.ProductRef,
		license.LicenseKey,
		license.Status,
		license.Instructions,
		license.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrDuplicateLicenseKey
		}
		return fmt.Errorf("failed to insert license: %w", err)
	}

	return nil
}

func (r *licenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = $1`

	lic, err := scanLicense(r.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrLicenseNotFound
		}
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	return lic, nil
}

func (r *licenseRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses
		WHERE order_id = $1
		ORDER BY sold_at DESC NULLS LAST
		LIMIT 1
	`

	lic, err := scanLicense(r.q(ctx).QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrLicenseNotFound
		}
		return nil, fmt.Errorf("failed to get license by order: %w", err)
	}

	return lic, nil
}

func (r *licenseRepository) SelectAvailableForUpdate(ctx context.Context, productRef string, limit int) ([]*model.License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses
		WHERE product_ref = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.q(ctx).Query(ctx, query, productRef, model.LicenseStatusAvailable, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select available licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*model.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate licenses: %w", err)
	}

	return licenses, nil
}

func (r *licenseRepository) MarkSold(ctx context.Context, id uuid.UUID, orderID uuid.UUID, soldAt time.Time) error {
	query := `
		UPDATE licenses
		SET status = $2, order_id = $3, sold_at = $4
		WHERE id = $1
	`

	result, err := r.q(ctx).Exec(ctx, query, id, model.LicenseStatusSold, orderID, soldAt)
	if err != nil {
		return fmt.Errorf("failed to mark license sold: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrLicenseNotFound
	}

	return nil
}

func (r *licenseRepository) MarkReserved(ctx context.Context, id uuid.UUID, orderID uuid.UUID, reservedAt time.Time) error {
	query := `
		UPDATE licenses
		SET status = $2, order_id = $3, reserved_at = $4
		WHERE id = $1
	`

	result, err := r.q(ctx).Exec(ctx, query, id, model.LicenseStatusReserved, orderID, reservedAt)
	if err != nil {
		return fmt.Errorf("failed to mark license reserved: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrLicenseNotFound
	}

	return nil
}

func (r *licenseRepository) Release(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE licenses
		SET status = $2, order_id = NULL, reserved_at = NULL, sold_at = NULL
		WHERE id = $1
	`

	result, err := r.q(ctx).Exec(ctx, query, id, model.LicenseStatusAvailable)
	if err != nil {
		return fmt.Errorf("failed to release license: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrLicenseNotFound
	}

	return nil
}

func (r *licenseRepository) CountByProduct(ctx context.Context, productRef string) (*model.InventoryCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4)
		FROM licenses
		WHERE product_ref = $1
	`

	counts := &model.InventoryCounts{}
	err := r.q(ctx).QueryRow(ctx, query,
		productRef,
		model.LicenseStatusAvailable,
		model.LicenseStatusReserved,
		model.LicenseStatusSold,
	).Scan(&counts.Available, &counts.Reserved, &counts.Sold)
	if err != nil {
		return nil, fmt.Errorf("failed to count licenses: %w", err)
	}

	return counts, nil
}
