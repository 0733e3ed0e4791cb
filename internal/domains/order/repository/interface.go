package repository

import (
	"context"

	"github.com/google/uuid"

	"licensify-backend/internal/domains/order/model"
)

type OrderRepoInterface interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// SetShippingEmail replaces the shippingInfo.email subtree.
	SetShippingEmail(ctx context.Context, id uuid.UUID, email model.EmailConfirmation) error
	// AppendMeta merges a subtree into the meta JSONB column under key.
	AppendMeta(ctx context.Context, id uuid.UUID, key string, value map[string]interface{}) error
}
