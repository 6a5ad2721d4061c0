package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/models"
	"github.com/storefrontcore/cart-service/internal/utils"
)

// CatalogRepository is the read-only view onto the product catalog this
// service consumes: current price and raw stock per variant. Raw stock is
// never written here; only reservation consumption decrements it.
type CatalogRepository interface {
	GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
}

type catalogRepository struct {
	DB *sql.DB
}

func NewCatalogRepo(db *sql.DB) CatalogRepository {
	return &catalogRepository{DB: db}
}

func (r *catalogRepository) GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `SELECT id, price, stock FROM product_variants WHERE id = $1`

	variant := &models.Variant{}

	err := r.DB.QueryRowContext(dbCtx, query, id).Scan(&variant.ID, &variant.Price, &variant.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVariantNotFound
		}

		return nil, fmt.Errorf("querying variant: %w", err)
	}

	return variant, nil
}
