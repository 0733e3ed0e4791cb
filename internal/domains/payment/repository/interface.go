package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"licensify-backend/internal/domains/payment/model"
)

type TransactionRepoInterface interface {
	Create(ctx context.Context, tx *model.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// GetByGatewayRef is the primary webhook correlation path.
	GetByGatewayRef(ctx context.Context, gateway, ref string) (*model.Transaction, error)
	GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// UpdateStatusFrom transitions status only when the row still holds
	// current, returning ErrStatusConflict when a concurrent writer won.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, current, next string) error
	SetGatewayRef(ctx context.Context, id uuid.UUID, ref string) error
	// MergeMeta merges fields at the top level of the meta column.
	MergeMeta(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	// AppendMeta merges value into the meta->key subtree.
	AppendMeta(ctx context.Context, id uuid.UUID, key string, value map[string]interface{}) error
	// FindRecentOpenByAmount is the amount-correlation fallback for
	// failure events without a reference: open transactions on the
	// gateway with this exact amount created since the cutoff.
	FindRecentOpenByAmount(ctx context.Context, gateway string, amount int64, since time.Time) ([]*model.Transaction, error)
	// CountOpenByOrder counts other open transactions on the order.
	CountOpenByOrder(ctx context.Context, orderID uuid.UUID, excludeID uuid.UUID) (int, error)
	HasPaidForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	// ListStuck returns open transactions older than the cutoff, for
	// the reconciliation sweep.
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*model.Transaction, error)
}

type WebhookRepoInterface interface {
	Create(ctx context.Context, event *model.WebhookEvent) error
	// GetByProviderExternalRef looks up the idempotency record.
	GetByProviderExternalRef(ctx context.Context, provider, externalRef string) (*model.WebhookEvent, error)
	// UpdateStatusAndEventID records a legitimate status transition
	// replay on the existing record.
	UpdateStatusAndEventID(ctx context.Context, id uuid.UUID, extractedStatus, eventID string) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}
