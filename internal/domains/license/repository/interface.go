package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensify-backend/internal/domains/license/model"
)

// LicenseRepoInterface covers the license inventory. All *ForUpdate
// methods take a row lock and must run inside a transaction.
type LicenseRepoInterface interface {
	Create(ctx context.Context, license *model.License) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.License, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.License, error)
	// SelectAvailableForUpdate locks up to limit AVAILABLE licenses for
	// the product, oldest first. Skips rows locked by concurrent
	// reservations instead of blocking on them.
	SelectAvailableForUpdate(ctx context.Context, productRef string, limit int) ([]*model.License, error)
	MarkSold(ctx context.Context, id uuid.UUID, orderID uuid.UUID, soldAt time.Time) error
	MarkReserved(ctx context.Context, id uuid.UUID, orderID uuid.UUID, reservedAt time.Time) error
	// Release puts a license back to AVAILABLE and clears order linkage.
	Release(ctx context.Context, id uuid.UUID) error
	CountByProduct(ctx context.Context, productRef string) (*model.InventoryCounts, error)
}

// WaitlistRepoInterface covers the FIFO delivery queue for paid orders
// that arrived while inventory was empty.
type WaitlistRepoInterface interface {
	Create(ctx context.Context, entry *model.WaitlistEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.WaitlistEntry, error)
	// OldestReadyForUpdate locks the single oldest READY_FOR_EMAIL entry
	// across all products. Returns ErrWaitlistEntryNotFound when none.
	OldestReadyForUpdate(ctx context.Context) (*model.WaitlistEntry, error)
	// PendingForUpdate locks up to limit PENDING entries for the
	// product, oldest priority first.
	PendingForUpdate(ctx context.Context, productRef string, limit int) ([]*model.WaitlistEntry, error)
	// ProductRefsWithPending lists products that have at least one
	// PENDING entry, for the periodic staging sweep.
	ProductRefsWithPending(ctx context.Context) ([]string, error)
	// MarkReadyForEmail records the reserved licenses staged for the
	// entry, one per requested unit.
	MarkReadyForEmail(ctx context.Context, id uuid.UUID, licenseIDs []uuid.UUID) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// RecordRetry increments retry_count, stores the error and returns
	// the entry to READY_FOR_EMAIL for the next tick.
	RecordRetry(ctx context.Context, id uuid.UUID, errMsg string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
