package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/pkg/database"
)

type transactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) TransactionRepoInterface {
	return &transactionRepository{pool: pool}
}

func (r *transactionRepository) q(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const txColumns = `id, order_id, gateway, gateway_ref, amount, currency, status, meta, created_at, updated_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	tx := &model.Transaction{}
	var metaJSON []byte

	err := row.Scan(
		&tx.ID,
		&tx.OrderID,
		&tx.Gateway,
		&tx.GatewayRef,
		&tx.Amount,
		&tx.Currency,
		&tx.Status,
		&metaJSON,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metaJSON != nil {
		json.Unmarshal(metaJSON, &tx.Meta)
	}
	if tx.Meta == nil {
		tx.Meta = map[string]interface{}{}
	}
	return tx, nil
}

func (r *transactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, order_id, gateway, gateway_ref, amount, currency, status,
			meta, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	metaJSON, err := json.Marshal(tx.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction meta: %w", err)
	}

	_, err = r.q(ctx).Exec(ctx, query,
		tx.ID,
		tx.OrderID,
		tx.Gateway,
		tx.GatewayRef,
		tx.Amount,
		tx.Currency,
		tx.Status,
		metaJSON,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) GetByGatewayRef(ctx context.Context, gateway, ref string) (*model.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE gateway = $1 AND gateway_ref = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	tx, err := scanTransaction(r.q(ctx).QueryRow(ctx, query, gateway, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by gateway ref: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	tx, err := scanTransaction(r.q(ctx).QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by order: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE transactions
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.q(ctx).Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, current, next string) error {
	query := `
		UPDATE transactions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.q(ctx).Exec(ctx, query, id, current, next)
	if err != nil {
		return fmt.Errorf("failed to transition transaction status: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish a lost race from a missing row.
		var exists bool
		err := r.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check transaction existence: %w", err)
		}
		if exists {
			return model.ErrStatusConflict
		}
		return model.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionRepository) SetGatewayRef(ctx context.Context, id uuid.UUID, ref string) error {
	query := `
		UPDATE transactions
		SET gateway_ref = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.q(ctx).Exec(ctx, query, id, ref)
	if err != nil {
		return fmt.Errorf("failed to set gateway ref: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionRepository) MergeMeta(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	query := `
		UPDATE transactions
		SET meta = COALESCE(meta, '{}'::jsonb) || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal meta fields: %w", err)
	}

	result, err := r.q(ctx).Exec(ctx, query, id, fieldsJSON)
	if err != nil {
		return fmt.Errorf("failed to merge transaction meta: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionRepository) AppendMeta(ctx context.Context, id uuid.UUID, key string, value map[string]interface{}) error {
	query := `
		UPDATE transactions
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
		return fmt.Errorf("failed to append transaction meta: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionRepository) FindRecentOpenByAmount(ctx context.Context, gateway string, amount int64, since time.Time) ([]*model.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE gateway = $1
			AND amount = $2
			AND status IN ($3, $4)
			AND created_at >= $5
		ORDER BY created_at DESC
	`

	rows, err := r.q(ctx).Query(ctx, query, gateway, amount, model.TxStatusCreated, model.TxStatusPending, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by amount: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *transactionRepository) CountOpenByOrder(ctx context.Context, orderID uuid.UUID, excludeID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE order_id = $1
			AND id != $2
			AND status IN ($3, $4)
	`

	var count int
	err := r.q(ctx).QueryRow(ctx, query, orderID, excludeID, model.TxStatusCreated, model.TxStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open transactions: %w", err)
	}

	return count, nil
}

func (r *transactionRepository) HasPaidForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions WHERE order_id = $1 AND status = $2
		)
	`

	var exists bool
	err := r.q(ctx).QueryRow(ctx, query, orderID, model.TxStatusPaid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check paid transactions: %w", err)
	}

	return exists, nil
}

func (r *transactionRepository) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE status IN ($1, $2)
			AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`

	rows, err := r.q(ctx).Query(ctx, query, model.TxStatusCreated, model.TxStatusPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*model.Transaction, error) {
	var txs []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}
