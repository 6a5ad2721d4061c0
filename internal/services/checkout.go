package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/api/middleware"
	"github.com/storefrontcore/cart-service/internal/cache"
	"github.com/storefrontcore/cart-service/internal/errors"
	"github.com/storefrontcore/cart-service/internal/models"
	repository "github.com/storefrontcore/cart-service/internal/repositories"
	"github.com/storefrontcore/cart-service/internal/utils"
)

// CheckoutService turns a cart snapshot into a pending order. The order
// insert and every reservation consume share one transaction: either the
// order exists and the stock is decremented, or neither happened.
type CheckoutService interface {
	Checkout(ctx context.Context, actor models.Actor) (*models.Order, error)
}

type checkoutService struct {
	db           *sql.DB
	carts        repository.CartRepository
	orders       repository.OrderRepository
	reservations ReservationService
	sequences    SequenceService
	cache        cache.Cache
}

func NewCheckoutService(db *sql.DB, carts repository.CartRepository, orders repository.OrderRepository, reservations ReservationService, sequences SequenceService, cartCache cache.Cache) CheckoutService {
	return &checkoutService{
		db:           db,
		carts:        carts,
		orders:       orders,
		reservations: reservations,
		sequences:    sequences,
		cache:        cartCache,
	}
}

func (s *checkoutService) Checkout(ctx context.Context, actor models.Actor) (*models.Order, error) {

	logger := middleware.LoggerFromContext(ctx)

	cart, err := s.carts.GetByActor(ctx, actor)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.BadRequestError("Cart is empty")
		}

		return nil, errors.DatabaseError("Failed to load cart").WithError(err)
	}

	if len(cart.Items) == 0 {
		return nil, errors.BadRequestError("Cart is empty")
	}

	// Every line must still be held. A lapsed hold is re-acquired through
	// the availability check; if the stock is gone, checkout fails before
	// anything is written.
	reservationIDs := make([]uuid.UUID, 0, len(cart.Items))

	for _, item := range cart.Items {

		reservation, err := s.reservations.ActiveFor(ctx, item.VariantKey(), actor)
		if err != nil {

			if !stderrors.Is(err, sql.ErrNoRows) {
				return nil, errors.DatabaseError("Failed to load reservation").WithError(err)
			}

			reservation, err = s.reservations.Reserve(ctx, item.VariantKey(), actor, item.Quantity)
			if err != nil {
				return nil, err
			}
		}

		reservationIDs = append(reservationIDs, reservation.ID)
	}

	orderNumber, err := s.sequences.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	reference, err := s.sequences.NextRefID(ctx)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: orderNumber,
		Reference:   reference,
		Actor:       actor,
		Items:       cart.Items,
		Currency:    cart.Currency,
		Total:       cart.Subtotal(),
		Status:      models.OrderPending,
	}

	if err := s.placeOrder(ctx, order, reservationIDs); err != nil {
		return nil, err
	}

	s.clearAfterCheckout(ctx, cart, logger)

	logger.Info("Order placed",
		slog.String("order_number", order.OrderNumber),
		slog.String("actor", actor.Key()))

	return order, nil
}

func (s *checkoutService) placeOrder(ctx context.Context, order *models.Order, reservationIDs []uuid.UUID) error {

	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(dbCtx, nil)
	if err != nil {
		return errors.DatabaseError("Failed to begin order transaction").WithError(err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	for _, id := range reservationIDs {

		if err := s.reservations.Consume(dbCtx, tx, id); err != nil {

			if stderrors.Is(err, repository.ErrReservationNotActive) ||
				stderrors.Is(err, repository.ErrInsufficientStock) {
				return errors.NewAppError(errors.ErrCodeOutOfStock, "Stock hold lapsed during checkout", http.StatusConflict).WithError(err)
			}

			return errors.DatabaseError("Failed to consume reservation").WithError(err)
		}
	}

	if err := s.orders.Create(dbCtx, tx, order); err != nil {
		return errors.DatabaseError("Failed to create order").WithError(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("Failed to commit order").WithError(err)
	}

	return nil
}

// clearAfterCheckout empties the cart on order success. The order already
// committed, so a failure here only leaves a stale cart to be cleaned up
// by the next mutation; it never unwinds the order.
func (s *checkoutService) clearAfterCheckout(ctx context.Context, cart *models.Cart, logger *slog.Logger) {

	cart.Items = []models.CartItem{}

	if err := s.carts.UpdateCAS(ctx, cart, cart.Version); err != nil {
		logger.Warn("Failed to clear cart after checkout", slog.String("error", err.Error()))
	}

	key := cache.Key(cache.CartKeyPrefix, cart.Actor.Key())

	if err := s.cache.Delete(ctx, key); err != nil {
		logger.Warn("Failed to evict cart cache entry after checkout", slog.String("error", err.Error()))
	}
}
