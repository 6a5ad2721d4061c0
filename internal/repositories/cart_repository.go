package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/storefrontcore/cart-service/internal/models"
	"github.com/storefrontcore/cart-service/internal/utils"
)

// ErrVersionConflict is returned when a compare-and-swap write loses the
// race: the stored version no longer matches what the caller read.
var ErrVersionConflict = errors.New("cart version conflict")

type CartRepository interface {
	GetByActor(ctx context.Context, actor models.Actor) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	UpdateCAS(ctx context.Context, cart *models.Cart, expectedVersion int64) error
	CurrentVersion(ctx context.Context, actor models.Actor) (int64, error)
	DeleteByActor(ctx context.Context, actor models.Actor) error
	ReplaceAndDelete(ctx context.Context, userCart *models.Cart, expectedVersion int64, guest models.Actor) error
}

type cartRepository struct {
	DB *sql.DB
}

func NewCartRepo(db *sql.DB) CartRepository {
	return &cartRepository{DB: db}
}

func (r *cartRepository) GetByActor(ctx context.Context, actor models.Actor) (*models.Cart, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, items, currency, version, created_at, updated_at
		FROM carts
		WHERE actor_kind = $1 AND actor_id = $2
	`

	cart := &models.Cart{Actor: actor}

	var itemsJSON []byte

	err := r.DB.QueryRowContext(dbCtx, query, actor.Kind, actor.ID).
		Scan(&cart.ID, &itemsJSON, &cart.Currency, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("querying cart: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &cart.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart items: %w", err)
	}

	return cart, nil
}

func (r *cartRepository) Create(ctx context.Context, cart *models.Cart) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	itemsJSON, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}

	query := `
		INSERT INTO carts (id, actor_kind, actor_id, items, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW())
		RETURNING version, created_at, updated_at
	`

	return r.DB.QueryRowContext(dbCtx, query, cart.ID, cart.Actor.Kind, cart.Actor.ID, itemsJSON, cart.Currency).
		Scan(&cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
}

// UpdateCAS commits the item list only if the stored version still equals
// expectedVersion, bumping it by one. Zero rows affected means another
// writer got there first and nothing was changed.
func (r *cartRepository) UpdateCAS(ctx context.Context, cart *models.Cart, expectedVersion int64) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	itemsJSON, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}

	query := `
		UPDATE carts
		SET items = $1, version = version + 1, updated_at = $2
		WHERE actor_kind = $3 AND actor_id = $4 AND version = $5
	`

	now := time.Now()

	result, err := r.DB.ExecContext(dbCtx, query, itemsJSON, now, cart.Actor.Kind, cart.Actor.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update the cart: %w", err)
	}

	updatedRows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get updated rows: %w", err)
	}

	if updatedRows == 0 {
		return ErrVersionConflict
	}

	cart.Version = expectedVersion + 1
	cart.UpdatedAt = now

	return nil
}

func (r *cartRepository) CurrentVersion(ctx context.Context, actor models.Actor) (int64, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `SELECT version FROM carts WHERE actor_kind = $1 AND actor_id = $2`

	var version int64

	err := r.DB.QueryRowContext(dbCtx, query, actor.Kind, actor.ID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}

		return 0, fmt.Errorf("querying cart version: %w", err)
	}

	return version, nil
}

func (r *cartRepository) DeleteByActor(ctx context.Context, actor models.Actor) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `DELETE FROM carts WHERE actor_kind = $1 AND actor_id = $2`

	if _, err := r.DB.ExecContext(dbCtx, query, actor.Kind, actor.ID); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	return nil
}

// ReplaceAndDelete writes the merged user cart and removes the guest cart
// in one transaction, so a merge can never leave both carts holding the
// merged lines. An absent user cart is created; an existing one is CAS
// updated against expectedVersion.
func (r *cartRepository) ReplaceAndDelete(ctx context.Context, userCart *models.Cart, expectedVersion int64, guest models.Actor) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	itemsJSON, err := json.Marshal(userCart.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}

	tx, err := r.DB.BeginTx(dbCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if expectedVersion == 0 {

		if userCart.ID == uuid.Nil {
			userCart.ID = uuid.New()
		}

		insert := `
			INSERT INTO carts (id, actor_kind, actor_id, items, currency, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW())
			RETURNING version, created_at, updated_at
		`

		err = tx.QueryRowContext(dbCtx, insert,
			userCart.ID, userCart.Actor.Kind, userCart.Actor.ID, itemsJSON, userCart.Currency).
			Scan(&userCart.Version, &userCart.CreatedAt, &userCart.UpdatedAt)
		if err != nil {
			// A concurrent first-add can create the user cart between the
			// version read and this insert. Surface the unique violation
			// as a version conflict so the caller recomputes and retries.
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrVersionConflict
			}

			return fmt.Errorf("failed to insert merged cart: %w", err)
		}

	} else {

		update := `
			UPDATE carts
			SET items = $1, version = version + 1, updated_at = NOW()
			WHERE actor_kind = $2 AND actor_id = $3 AND version = $4
		`

		result, err := tx.ExecContext(dbCtx, update,
			itemsJSON, userCart.Actor.Kind, userCart.Actor.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update merged cart: %w", err)
		}

		updatedRows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get updated rows: %w", err)
		}

		if updatedRows == 0 {
			return ErrVersionConflict
		}

		userCart.Version = expectedVersion + 1
	}

	deleteGuest := `DELETE FROM carts WHERE actor_kind = $1 AND actor_id = $2`

	if _, err := tx.ExecContext(dbCtx, deleteGuest, guest.Kind, guest.ID); err != nil {
		return fmt.Errorf("failed to delete guest cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge transaction: %w", err)
	}

	return nil
}
