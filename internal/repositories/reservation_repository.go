package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/models"
	"github.com/storefrontcore/cart-service/internal/utils"
)

var (
	// ErrInsufficientStock means the requested quantity exceeds the
	// variant's available-to-sell; nothing was reserved.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrVariantNotFound means the catalog has no such variant.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrReservationNotActive means the reservation is absent, already
	// consumed or cancelled, or its TTL has lapsed.
	ErrReservationNotActive = errors.New("reservation is not active")
)

type ReservationRepository interface {
	Reserve(ctx context.Context, variantID uuid.UUID, actorKey string, quantity int, ttl time.Duration) (*models.Reservation, error)
	Extend(ctx context.Context, id uuid.UUID, ttl time.Duration) error
	Cancel(ctx context.Context, id uuid.UUID) error
	CancelForActor(ctx context.Context, actorKey string, variantID uuid.UUID) error
	CancelAllForActor(ctx context.Context, actorKey string) error
	Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	GetActive(ctx context.Context, variantID uuid.UUID, actorKey string) (*models.Reservation, error)
	ActiveForActor(ctx context.Context, actorKey string) ([]models.Reservation, error)
	SweepExpired(ctx context.Context) ([]uuid.UUID, error)
	Available(ctx context.Context, variantID uuid.UUID, excludeActor string) (*models.Availability, error)
}

type reservationRepository struct {
	DB *sql.DB
}

func NewReservationRepo(db *sql.DB) ReservationRepository {
	return &reservationRepository{DB: db}
}

// Reserve upserts the actor's hold on a variant. The variant row is locked
// first so concurrent holds for the same variant serialize; without the
// lock, two different actors each read an availability snapshot that
// misses the other's uncommitted hold and both commit past raw stock.
// The insert is then gated on quantity fitting into available-to-sell
// (raw stock minus every other actor's active, non-expired hold), and the
// partial unique index turns a second hold for the same (variant, actor)
// into an update of the existing row. Zero rows back means the quantity
// did not fit.
func (r *reservationRepository) Reserve(ctx context.Context, variantID uuid.UUID, actorKey string, quantity int, ttl time.Duration) (*models.Reservation, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	tx, err := r.DB.BeginTx(dbCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	lock := `SELECT stock FROM product_variants WHERE id = $1 FOR UPDATE`

	var stock int

	if err := tx.QueryRowContext(dbCtx, lock, variantID).Scan(&stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVariantNotFound
		}

		return nil, fmt.Errorf("failed to lock variant: %w", err)
	}

	query := `
		INSERT INTO reservations (id, variant_id, actor_key, quantity, status, expires_at, created_at, updated_at)
		SELECT $1, $2, $3, $4, 'active', NOW() + make_interval(secs => $5), NOW(), NOW()
		WHERE $4 <= (
			SELECT v.stock - COALESCE((
				SELECT SUM(r.quantity)
				FROM reservations r
				WHERE r.variant_id = $2
				  AND r.actor_key <> $3
				  AND r.status = 'active'
				  AND r.expires_at > NOW()
			), 0)
			FROM product_variants v
			WHERE v.id = $2
		)
		ON CONFLICT (variant_id, actor_key) WHERE status = 'active'
		DO UPDATE SET quantity = EXCLUDED.quantity, expires_at = EXCLUDED.expires_at, updated_at = NOW()
		RETURNING id, variant_id, actor_key, quantity, status, expires_at, created_at, updated_at
	`

	reservation := &models.Reservation{}

	err = tx.QueryRowContext(dbCtx, query,
		uuid.New(), variantID, actorKey, quantity, ttl.Seconds()).
		Scan(&reservation.ID, &reservation.VariantID, &reservation.ActorKey, &reservation.Quantity,
			&reservation.Status, &reservation.ExpiresAt, &reservation.CreatedAt, &reservation.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInsufficientStock
		}

		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	return reservation, nil
}

func (r *reservationRepository) Extend(ctx context.Context, id uuid.UUID, ttl time.Duration) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE reservations
		SET expires_at = NOW() + make_interval(secs => $2), updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND expires_at > NOW()
	`

	result, err := r.DB.ExecContext(dbCtx, query, id, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("failed to extend reservation: %w", err)
	}

	updatedRows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get updated rows: %w", err)
	}

	if updatedRows == 0 {
		return ErrReservationNotActive
	}

	return nil
}

func (r *reservationRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE reservations
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.DB.ExecContext(dbCtx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}

	updatedRows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get updated rows: %w", err)
	}

	if updatedRows == 0 {
		return ErrReservationNotActive
	}

	return nil
}

func (r *reservationRepository) CancelForActor(ctx context.Context, actorKey string, variantID uuid.UUID) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE reservations
		SET status = 'cancelled', updated_at = NOW()
		WHERE variant_id = $1 AND actor_key = $2 AND status = 'active'
	`

	if _, err := r.DB.ExecContext(dbCtx, query, variantID, actorKey); err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}

	return nil
}

func (r *reservationRepository) CancelAllForActor(ctx context.Context, actorKey string) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE reservations
		SET status = 'cancelled', updated_at = NOW()
		WHERE actor_key = $1 AND status = 'active'
	`

	if _, err := r.DB.ExecContext(dbCtx, query, actorKey); err != nil {
		return fmt.Errorf("failed to cancel reservations: %w", err)
	}

	return nil
}

// Consume permanently decrements raw stock inside the caller's order
// transaction: either the order write and the consume both commit, or
// neither does. It runs at most once per reservation because only an
// active row can transition to consumed.
func (r *reservationRepository) Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {

	consume := `
		UPDATE reservations
		SET status = 'consumed', updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND expires_at > NOW()
		RETURNING variant_id, quantity
	`

	var variantID uuid.UUID

	var quantity int

	err := tx.QueryRowContext(ctx, consume, id).Scan(&variantID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrReservationNotActive
		}

		return fmt.Errorf("failed to consume reservation: %w", err)
	}

	decrement := `
		UPDATE product_variants
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`

	result, err := tx.ExecContext(ctx, decrement, variantID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	updatedRows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get updated rows: %w", err)
	}

	if updatedRows == 0 {
		return fmt.Errorf("stock underflow for variant %s: %w", variantID, ErrInsufficientStock)
	}

	return nil
}

func (r *reservationRepository) GetActive(ctx context.Context, variantID uuid.UUID, actorKey string) (*models.Reservation, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, variant_id, actor_key, quantity, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE variant_id = $1 AND actor_key = $2 AND status = 'active' AND expires_at > NOW()
	`

	reservation := &models.Reservation{}

	err := r.DB.QueryRowContext(dbCtx, query, variantID, actorKey).
		Scan(&reservation.ID, &reservation.VariantID, &reservation.ActorKey, &reservation.Quantity,
			&reservation.Status, &reservation.ExpiresAt, &reservation.CreatedAt, &reservation.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("querying reservation: %w", err)
	}

	return reservation, nil
}

func (r *reservationRepository) ActiveForActor(ctx context.Context, actorKey string) ([]models.Reservation, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, variant_id, actor_key, quantity, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE actor_key = $1 AND status = 'active' AND expires_at > NOW()
	`

	rows, err := r.DB.QueryContext(dbCtx, query, actorKey)
	if err != nil {
		return nil, fmt.Errorf("querying reservations: %w", err)
	}

	defer rows.Close()

	var reservations []models.Reservation

	for rows.Next() {

		var reservation models.Reservation

		err := rows.Scan(&reservation.ID, &reservation.VariantID, &reservation.ActorKey, &reservation.Quantity,
			&reservation.Status, &reservation.ExpiresAt, &reservation.CreatedAt, &reservation.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}

		reservations = append(reservations, reservation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reservations: %w", err)
	}

	return reservations, nil
}

// SweepExpired makes the lazy active→expired transition physical. Every
// availability read already filters on expires_at, so the sweep only keeps
// the table tidy; correctness never waits for it.
func (r *reservationRepository) SweepExpired(ctx context.Context) ([]uuid.UUID, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE reservations
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND expires_at <= NOW()
		RETURNING id
	`

	rows, err := r.DB.QueryContext(dbCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep expired reservations: %w", err)
	}

	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {

		var id uuid.UUID

		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning swept reservation id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating swept reservations: %w", err)
	}

	return ids, nil
}

// Available computes available-to-sell for a variant. When excludeActor is
// set, that actor's own active hold is left out of the reserved sum, which
// is the number that matters when their hold is about to be replaced.
func (r *reservationRepository) Available(ctx context.Context, variantID uuid.UUID, excludeActor string) (*models.Availability, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT v.stock, COALESCE((
			SELECT SUM(r.quantity)
			FROM reservations r
			WHERE r.variant_id = v.id
			  AND r.actor_key <> $2
			  AND r.status = 'active'
			  AND r.expires_at > NOW()
		), 0)
		FROM product_variants v
		WHERE v.id = $1
	`

	availability := &models.Availability{VariantID: variantID}

	err := r.DB.QueryRowContext(dbCtx, query, variantID, excludeActor).
		Scan(&availability.Stock, &availability.Reserved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVariantNotFound
		}

		return nil, fmt.Errorf("querying availability: %w", err)
	}

	availability.Available = availability.Stock - availability.Reserved
	if availability.Available < 0 {
		availability.Available = 0
	}

	return availability, nil
}
