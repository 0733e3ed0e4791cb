package repository

import (
	"context"

	"licensify-backend/internal/domains/product/model"
)

type ProductRepoInterface interface {
	Create(ctx context.Context, product *model.Product) error
	GetByRef(ctx context.Context, ref string) (*model.Product, error)
}
