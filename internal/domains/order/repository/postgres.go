package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensify-backend/internal/domains/order/model"
	"licensify-backend/pkg/database"
)

type orderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepoInterface {
	return &orderRepository{pool: pool}
}

func (r *orderRepository) q(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	query := `
		INSERT INTO orders (
			id, customer_id, product_ref, qty, subtotal, discount_total,
			tax_total, grand_total, currency, status, shipping_info, meta,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	shippingJSON, err := json.Marshal(order.ShippingInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping info: %w", err)
	}
	metaJSON, err := json.Marshal(order.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	_, err = r.q(ctx).Exec(ctx, query,
		order.ID,
		order.CustomerID,
		order.ProductRef,
		order.Qty,
		order.Subtotal,
		order.DiscountTotal,
		order.TaxTotal,
		order.GrandTotal,
		order.Currency,
		order.Status,
		shippingJSON,
		metaJSON,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `
		SELECT id, customer_id, product_ref, qty, subtotal, discount_total,
			tax_total, grand_total, currency, status, shipping_info, meta,
			created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order := &model.Order{}
	var shippingJSON, metaJSON []byte

	err := r.q(ctx).QueryRow(ctx, query, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.ProductRef,
		&order.Qty,
		&order.Subtotal,
		&order.DiscountTotal,
		&order.TaxTotal,
		&order.GrandTotal,
		&order.Currency,
		&order.Status,
		&shippingJSON,
		&metaJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if shippingJSON != nil {
		json.Unmarshal(shippingJSON, &order.ShippingInfo)
	}
	if metaJSON != nil {
		json.Unmarshal(metaJSON, &order.Meta)
	}

	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.q(ctx).Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}

func (r *orderRepository) SetShippingEmail(ctx context.Context, id uuid.UUID, email model.EmailConfirmation) error {
	query := `
		UPDATE orders
		SET shipping_info = jsonb_set(COALESCE(shipping_info, '{}'::jsonb), '{email}', $2::jsonb),
			updated_at = NOW()
		WHERE id = $1
	`

	emailJSON, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal email confirmation: %w", err)
	}

	result, err := r.q(ctx).Exec(ctx, query, id, emailJSON)
	if err != nil {
		return fmt.Errorf("failed to set shipping email: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}

// AppendMeta merges value under meta->key. Existing keys inside the subtree
// are preserved unless overwritten, keeping the audit trail append-only.
func (r *orderRepository) AppendMeta(ctx context.Context, id uuid.UUID, key string, value map[string]interface{}) error {
	query := `
		UPDATE orders
		SET meta = jsonb_set(
				COALESCE(meta, '{}'::jsonb),
				ARRAY[$2],
				COALESCE(meta->$2, '{}'::jsonb) || $3::jsonb
			),
			updated_at = NOW()
		WHERE id = $1
	`

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal meta value: %w", err)
	}

	result, err := r.q(ctx).Exec(ctx, query, id, key, valueJSON)
	if err != nil {
		return fmt.Errorf("failed to append order meta: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}
