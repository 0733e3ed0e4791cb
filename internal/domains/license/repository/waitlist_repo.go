package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensify-backend/internal/domains/license/model"
	"licensify-backend/pkg/database"
)

type waitlistRepository struct {
	pool *pgxpool.Pool
}

func NewWaitlistRepository(pool *pgxpool.Pool) WaitlistRepoInterface {
	return &waitlistRepository{pool: pool}
}

func (r *waitlistRepository) q(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

const waitlistColumns = `id, order_id, customer_id, product_ref, qty, status, priority, license_ids, retry_count, error_message, processed_at, created_at`

func scanWaitlistEntry(row pgx.Row) (*model.WaitlistEntry, error) {
	entry := &model.WaitlistEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.OrderID,
		&entry.CustomerID,
		&entry.ProductRef,
		&entry.Qty,
		&entry.Status,
		&entry.Priority,
		&entry.LicenseIDs,
		&entry.RetryCount,
		&entry.ErrorMessage,
		&entry.ProcessedAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *waitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (
			id, order_id, customer_id, product_ref, qty, status, priority,
			retry_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q(ctx).Exec(ctx, query,
		entry.ID,
		entry.OrderID,
		entry.CustomerID,
		entry.ProductRef,
		entry.Qty,
		entry.Status,
		entry.Priority,
		entry.RetryCount,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}

	return nil
}

func (r *waitlistRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1`

	entry, err := scanWaitlistEntry(r.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWaitlistEntryNotFound
		}
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}

	return entry, nil
}

func (r *waitlistRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	entry, err := scanWaitlistEntry(r.q(ctx).QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWaitlistEntryNotFound
		}
		return nil, fmt.Errorf("failed to get waitlist entry by order: %w", err)
	}

	return entry, nil
}

func (r *waitlistRepository) OldestReadyForUpdate(ctx context.Context) (*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE status = $1
		ORDER BY priority ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	entry, err := scanWaitlistEntry(r.q(ctx).QueryRow(ctx, query, model.WaitlistStatusReadyForEmail))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWaitlistEntryNotFound
		}
		return nil, fmt.Errorf("failed to select ready waitlist entry: %w", err)
	}

	return entry, nil
}

func (r *waitlistRepository) PendingForUpdate(ctx context.Context, productRef string, limit int) ([]*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE product_ref = $1 AND status = $2
		ORDER BY priority ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.q(ctx).Query(ctx, query, productRef, model.WaitlistStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate waitlist entries: %w", err)
	}

	return entries, nil
}

func (r *waitlistRepository) ProductRefsWithPending(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT product_ref
		FROM waitlist_entries
		WHERE status = $1
	`

	rows, err := r.q(ctx).Query(ctx, query, model.WaitlistStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending products: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("failed to scan product ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product refs: %w", err)
	}

	return refs, nil
}

func (r *waitlistRepository) MarkReadyForEmail(ctx context.Context, id uuid.UUID, licenseIDs []uuid.UUID) error {
	query := `
		UPDATE waitlist_entries
		SET status = $2, license_ids = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, id, model.WaitlistStatusReadyForEmail, licenseIDs)
}

func (r *waitlistRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE waitlist_entries
		SET status = $2
		WHERE id = $1
	`
	return r.exec(ctx, query, id, model.WaitlistStatusProcessing)
}

func (r *waitlistRepository) MarkCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	query := `
		UPDATE waitlist_entries
		SET status = $2, processed_at = $3, error_message = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, id, model.WaitlistStatusCompleted, processedAt)
}

func (r *waitlistRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE waitlist_entries
		SET status = $2, error_message = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, id, model.WaitlistStatusFailed, errMsg)
}

func (r *waitlistRepository) RecordRetry(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE waitlist_entries
		SET status = $2, retry_count = retry_count + 1, error_message = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, id, model.WaitlistStatusReadyForEmail, errMsg)
}

func (r *waitlistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM waitlist_entries WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *waitlistRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrWaitlistEntryNotFound
	}
	return nil
}
