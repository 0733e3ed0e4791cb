package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensify-backend/internal/domains/product/model"
	"licensify-backend/pkg/database"
)

type productRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) ProductRepoInterface {
	return &productRepository{pool: pool}
}

func (r *productRepository) q(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	query := `
		INSERT INTO products (
			id, ref, name, price_cents, currency, license_type, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q(ctx).Exec(ctx, query,
		product.ID,
		product.Ref,
		product.Name,
		product.PriceCents,
		product.Currency,
		product.LicenseType,
		product.Active,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrDuplicateProductRef
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}

	return nil
}

func (r *productRepository) GetByRef(ctx context.Context, ref string) (*model.Product, error) {
	query := `
		SELECT id, ref, name, price_cents, currency, license_type, active, created_at, updated_at
		FROM products
		WHERE ref = $1
	`

	product := &model.Product{}
	err := r.q(ctx).QueryRow(ctx, query, ref).Scan(
		&product.ID,
		&product.Ref,
		&product.Name,
		&product.PriceCents,
		&product.Currency,
		&product.LicenseType,
		&product.Active,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}
