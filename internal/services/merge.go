package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/storefrontcore/cart-service/internal/api/middleware"
	"github.com/storefrontcore/cart-service/internal/cache"
	"github.com/storefrontcore/cart-service/internal/errors"
	"github.com/storefrontcore/cart-service/internal/metrics"
	"github.com/storefrontcore/cart-service/internal/models"
	repository "github.com/storefrontcore/cart-service/internal/repositories"
)

// mergeMaxAttempts bounds CAS retries when concurrent writes race the
// merge; every attempt re-derives targets from current stored state.
const mergeMaxAttempts = 3

// MergeService reconciles a guest actor's cart and reservations into a
// newly authenticated user's cart. It is the only code path that moves
// ownership from Guest to User.
type MergeService interface {
	Merge(ctx context.Context, guest, user models.Actor) (*models.MergeResult, error)
}

type mergeService struct {
	repo         repository.CartRepository
	reservations ReservationService
	cache        cache.Cache
	currency     string
	cacheTTL     time.Duration
}

func NewMergeService(repo repository.CartRepository, reservations ReservationService, cartCache cache.Cache, currency string, cacheTTL time.Duration) MergeService {
	return &mergeService{
		repo:         repo,
		reservations: reservations,
		cache:        cartCache,
		currency:     currency,
		cacheTTL:     cacheTTL,
	}
}

// Merge is idempotent by recomputation: target quantities are derived from
// the carts as currently stored, reservation upserts are absolute, and the
// user-cart write and guest-cart delete share one transaction. Re-invoking
// after any partial failure converges on the same final user cart.
func (s *mergeService) Merge(ctx context.Context, guest, user models.Actor) (*models.MergeResult, error) {

	if guest.Kind != models.ActorGuest || user.Kind != models.ActorUser {
		return nil, errors.BadRequestError("Merge requires a guest source and a user target")
	}

	logger := middleware.LoggerFromContext(ctx)

	var lastErr error

	for attempt := 1; attempt <= mergeMaxAttempts; attempt++ {

		result, err := s.mergeOnce(ctx, guest, user, logger)
		if err == nil {
			metrics.ObserveMerge(result.Merged)

			return result, nil
		}

		if _, ok := errors.IsConflict(err); !ok {
			return nil, err
		}

		logger.Warn("Merge lost a version race, recomputing",
			slog.Int("attempt", attempt), slog.String("error", err.Error()))
		lastErr = err
	}

	return nil, lastErr
}

func (s *mergeService) mergeOnce(ctx context.Context, guest, user models.Actor, logger *slog.Logger) (*models.MergeResult, error) {

	guestCart, err := s.repo.GetByActor(ctx, guest)
	if err != nil {

		if stderrors.Is(err, sql.ErrNoRows) {
			// Nothing to merge (or a previous invocation already
			// finished); still sweep up any leftover guest holds.
			return s.alreadyMerged(ctx, guest, user)
		}

		return nil, errors.DatabaseError("Failed to load guest cart").WithError(err)
	}

	userCart, err := s.repo.GetByActor(ctx, user)
	if err != nil {
		if !stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.DatabaseError("Failed to load user cart").WithError(err)
		}

		userCart = &models.Cart{Actor: user, Items: []models.CartItem{}, Currency: s.currency}
	}

	expectedVersion := userCart.Version
	merged := make([]models.CartItem, len(userCart.Items))
	copy(merged, userCart.Items)

	mergedCart := &models.Cart{
		ID:       userCart.ID,
		Actor:    user,
		Items:    merged,
		Currency: userCart.Currency,
	}

	var lines []models.MergedLine

	for _, guestLine := range guestCart.Items {

		line := s.mergeLine(ctx, mergedCart, guestLine, guest, user, logger)
		lines = append(lines, line)
	}

	if err := s.repo.ReplaceAndDelete(ctx, mergedCart, expectedVersion, guest); err != nil {

		if stderrors.Is(err, repository.ErrVersionConflict) {

			actual, versionErr := s.repo.CurrentVersion(ctx, user)
			if versionErr != nil {
				actual = 0
			}

			return nil, &errors.ConflictError{Expected: expectedVersion, Actual: actual}
		}

		return nil, errors.DatabaseError("Failed to commit merged cart").WithError(err)
	}

	if err := s.reservations.CancelAll(ctx, guest); err != nil {
		logger.Warn("Failed to cancel leftover guest reservations; they will lapse by TTL",
			slog.String("guest", guest.Key()), slog.String("error", err.Error()))
	}

	s.refreshCaches(ctx, mergedCart, guest, logger)

	return &models.MergeResult{Cart: mergedCart, Lines: lines, Merged: true}, nil
}

// mergeLine folds one guest line into the target cart. Stock exhaustion
// caps (or drops) the affected line and is reported; it never aborts the
// rest of the merge.
func (s *mergeService) mergeLine(ctx context.Context, target *models.Cart, guestLine models.CartItem, guest, user models.Actor, logger *slog.Logger) models.MergedLine {

	result := models.MergedLine{
		ProductID: guestLine.ProductID,
		VariantID: guestLine.VariantID,
	}

	idx := target.FindItem(guestLine.LineKey())

	requested := guestLine.Quantity
	if idx >= 0 {
		requested += target.Items[idx].Quantity
	}

	result.Requested = requested

	final := requested

	if _, err := s.reservations.Reserve(ctx, guestLine.VariantKey(), user, requested); err != nil {

		oosErr, ok := errors.IsOutOfStock(err)
		if !ok {
			logger.Error("Merge line failed on reservation",
				slog.String("variant", guestLine.VariantKey().String()), slog.String("error", err.Error()))

			result.Dropped = idx < 0
			result.Final = 0

			if idx >= 0 {
				result.Final = target.Items[idx].Quantity
			}

			return result
		}

		final = oosErr.Available
		result.Capped = true

		if final > 0 {
			if _, err := s.reservations.Reserve(ctx, guestLine.VariantKey(), user, final); err != nil {
				logger.Warn("Capped re-reserve failed during merge",
					slog.String("variant", guestLine.VariantKey().String()), slog.String("error", err.Error()))
				final = 0
			}
		}
	}

	if final <= 0 {

		result.Final = 0
		result.Dropped = true

		if idx >= 0 {
			target.Items = append(target.Items[:idx], target.Items[idx+1:]...)
		}
	} else {

		result.Final = final

		if idx >= 0 {
			target.Items[idx].Quantity = final
			target.Items[idx].UpdatedAt = time.Now()
		} else {
			moved := guestLine
			moved.Quantity = final
			moved.UpdatedAt = time.Now()
			target.Items = append(target.Items, moved)
		}
	}

	if err := s.reservations.CancelLine(ctx, guest, guestLine.VariantKey()); err != nil {
		logger.Warn("Failed to cancel guest reservation during merge",
			slog.String("variant", guestLine.VariantKey().String()), slog.String("error", err.Error()))
	}

	return result
}

func (s *mergeService) alreadyMerged(ctx context.Context, guest, user models.Actor) (*models.MergeResult, error) {

	logger := middleware.LoggerFromContext(ctx)

	if err := s.reservations.CancelAll(ctx, guest); err != nil {
		logger.Warn("Failed to cancel leftover guest reservations",
			slog.String("guest", guest.Key()), slog.String("error", err.Error()))
	}

	if err := s.cache.Delete(ctx, cache.Key(cache.CartKeyPrefix, guest.Key())); err != nil {
		logger.Warn("Failed to evict guest cart cache entry", slog.String("error", err.Error()))
	}

	userCart, err := s.repo.GetByActor(ctx, user)
	if err != nil {
		if !stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.DatabaseError("Failed to load user cart").WithError(err)
		}

		userCart = &models.Cart{Actor: user, Items: []models.CartItem{}, Currency: s.currency}
	}

	return &models.MergeResult{Cart: userCart, Merged: false}, nil
}

func (s *mergeService) refreshCaches(ctx context.Context, mergedCart *models.Cart, guest models.Actor, logger *slog.Logger) {

	if err := s.cache.Delete(ctx, cache.Key(cache.CartKeyPrefix, guest.Key())); err != nil {
		logger.Warn("Failed to evict guest cart cache entry", slog.String("error", err.Error()))
	}

	userKey := cache.Key(cache.CartKeyPrefix, mergedCart.Actor.Key())

	if err := s.cache.Set(ctx, userKey, mergedCart, s.cacheTTL); err != nil {
		logger.Warn("Failed to refresh user cart cache entry", slog.String("error", err.Error()))

		if err := s.cache.Delete(ctx, userKey); err != nil {
			logger.Warn("Failed to evict user cart cache entry", slog.String("error", err.Error()))
		}
	}
}
