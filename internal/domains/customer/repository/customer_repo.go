package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensify-backend/internal/domains/customer/model"
	"licensify-backend/pkg/database"
)

type CustomerRepoInterface interface {
	// Upsert finds a customer by email or creates one, returning the row.
	Upsert(ctx context.Context, customer *model.Customer) (*model.Customer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
}

type customerRepository struct {
	pool *pgxpool.Pool
}

func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepoInterface {
	return &customerRepository{pool: pool}
}

func (r *customerRepository) q(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

func (r *customerRepository) Upsert(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	query := `
		INSERT INTO customers (id, email, full_name, phone, document_type, document_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			document_type = EXCLUDED.document_type,
			document_number = EXCLUDED.document_number
		RETURNING id, email, full_name, phone, document_type, document_number, created_at
	`

	row := &model.Customer{}
	err := r.q(ctx).QueryRow(ctx, query,
		customer.ID,
		customer.Email,
		customer.FullName,
		customer.Phone,
		customer.DocumentType,
		customer.DocumentNumber,
		customer.CreatedAt,
	).Scan(
		&row.ID,
		&row.Email,
		&row.FullName,
		&row.Phone,
		&row.DocumentType,
		&row.DocumentNumber,
		&row.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}

	return row, nil
}

func (r *customerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	query := `
		SELECT id, email, full_name, phone, document_type, document_number, created_at
		FROM customers
		WHERE id = $1
	`

	customer := &model.Customer{}
	err := r.q(ctx).QueryRow(ctx, query, id).Scan(
		&customer.ID,
		&customer.Email,
		&customer.FullName,
		&customer.Phone,
		&customer.DocumentType,
		&customer.DocumentNumber,
		&customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return customer, nil
}
