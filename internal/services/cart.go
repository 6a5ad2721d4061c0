package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/api/middleware"
	"github.com/storefrontcore/cart-service/internal/cache"
	"github.com/storefrontcore/cart-service/internal/errors"
	"github.com/storefrontcore/cart-service/internal/metrics"
	"github.com/storefrontcore/cart-service/internal/models"
	repository "github.com/storefrontcore/cart-service/internal/repositories"
)

type CartService interface {
	GetCart(ctx context.Context, actor models.Actor) (*models.Cart, error)
	PutCart(ctx context.Context, actor models.Actor, req *models.PutCartRequest) (*models.Cart, error)
}

type cartService struct {
	repo         repository.CartRepository
	catalog      repository.CatalogRepository
	reservations ReservationService
	cache        cache.Cache
	currency     string
	cacheTTL     time.Duration
}

func NewCartService(repo repository.CartRepository, catalog repository.CatalogRepository, reservations ReservationService, cartCache cache.Cache, currency string, cacheTTL time.Duration) CartService {
	return &cartService{
		repo:         repo,
		catalog:      catalog,
		reservations: reservations,
		cache:        cartCache,
		currency:     currency,
		cacheTTL:     cacheTTL,
	}
}

// GetCart is read-through: cache hit wins, a miss or any cache failure
// loads from the store and repopulates. An actor with no cart yet gets an
// empty cart at version 0.
func (s *cartService) GetCart(ctx context.Context, actor models.Actor) (*models.Cart, error) {

	logger := middleware.LoggerFromContext(ctx)
	key := cache.Key(cache.CartKeyPrefix, actor.Key())

	var cached models.Cart

	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("Cart cache read failed, falling back to store", slog.String("error", err.Error()))
	}

	if found && err == nil {
		return &cached, nil
	}

	cart, err := s.repo.GetByActor(ctx, actor)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return s.emptyCart(actor), nil
		}

		return nil, errors.DatabaseError("Failed to load cart").WithError(err)
	}

	if err := s.cache.Set(ctx, key, cart, s.cacheTTL); err != nil {
		logger.Warn("Cart cache populate failed", slog.String("error", err.Error()))
	}

	return cart, nil
}

// PutCart applies a mutation against the version the caller read. The
// required reservations are acquired for every line's full new quantity
// before anything is written; an OutOfStock rejects the whole Put and no
// partial item list is ever stored.
func (s *cartService) PutCart(ctx context.Context, actor models.Actor, req *models.PutCartRequest) (*models.Cart, error) {

	cart, created, err := s.loadForWrite(ctx, actor, req.Version)
	if err != nil {
		metrics.ObserveCartOp(string(req.Operation), cartOpResult(err))

		return nil, err
	}

	switch req.Operation {
	case models.OpAdd:
		err = s.applyAdd(ctx, cart, req.Items)
	case models.OpUpdate:
		err = s.applyUpdate(ctx, cart, req.Items)
	case models.OpRemove:
		err = s.applyRemove(ctx, cart, req.Items)
	case models.OpClear:
		err = s.applyClear(ctx, cart)
	default:
		err = errors.BadRequestError("Unknown cart operation")
	}

	if err != nil {
		if _, ok := errors.IsOutOfStock(err); ok {
			metrics.ObserveCartOp(string(req.Operation), "out_of_stock")
		} else {
			metrics.ObserveCartOp(string(req.Operation), "error")
		}

		return nil, err
	}

	if err := s.commit(ctx, cart, req.Version, created); err != nil {
		metrics.ObserveCartOp(string(req.Operation), cartOpResult(err))

		return nil, err
	}

	metrics.ObserveCartOp(string(req.Operation), "ok")

	return cart, nil
}

// loadForWrite fetches the authoritative cart, creating an empty one on
// first mutation. A caller-supplied version that cannot match fails fast
// with Conflict instead of burning a reservation round trip.
func (s *cartService) loadForWrite(ctx context.Context, actor models.Actor, version int64) (*models.Cart, bool, error) {

	cart, err := s.repo.GetByActor(ctx, actor)
	if err != nil {

		if stderrors.Is(err, sql.ErrNoRows) {

			if version != 0 {
				return nil, false, &errors.ConflictError{Expected: version, Actual: 0}
			}

			return s.emptyCart(actor), true, nil
		}

		return nil, false, errors.DatabaseError("Failed to load cart").WithError(err)
	}

	if cart.Version != version {
		return nil, false, &errors.ConflictError{Expected: version, Actual: cart.Version}
	}

	return cart, false, nil
}

func (s *cartService) emptyCart(actor models.Actor) *models.Cart {
	return &models.Cart{
		ID:       uuid.New(),
		Actor:    actor,
		Items:    []models.CartItem{},
		Currency: s.currency,
	}
}

// applyAdd increments each incoming line by its delta, refreshing the
// price snapshot from the catalog, and re-holds the full new quantity.
func (s *cartService) applyAdd(ctx context.Context, cart *models.Cart, items []models.PutItemRequest) error {

	for _, req := range items {

		line := toCartItem(req)
		idx := cart.FindItem(line.LineKey())

		newQuantity := req.Quantity
		if idx >= 0 {
			newQuantity += cart.Items[idx].Quantity
		}

		variant, err := s.catalog.GetVariant(ctx, line.VariantKey())
		if err != nil {
			if stderrors.Is(err, repository.ErrVariantNotFound) {
				return errors.NotFoundError("Variant not found").WithDetail(line.VariantKey().String())
			}

			return errors.DatabaseError("Failed to load variant").WithError(err)
		}

		if _, err := s.reservations.Reserve(ctx, line.VariantKey(), cart.Actor, newQuantity); err != nil {
			return err
		}

		now := time.Now()

		if idx >= 0 {
			cart.Items[idx].Quantity = newQuantity
			cart.Items[idx].PriceSnapshot = variant.Price
			cart.Items[idx].UpdatedAt = now
		} else {
			line.Quantity = newQuantity
			line.PriceSnapshot = variant.Price
			line.AddedAt = now
			line.UpdatedAt = now
			cart.Items = append(cart.Items, line)
		}
	}

	return nil
}

// applyUpdate is a full replace of the actor's item list: every incoming
// line re-validates its hold at its absolute quantity, and holds for lines
// no longer present are cancelled.
func (s *cartService) applyUpdate(ctx context.Context, cart *models.Cart, items []models.PutItemRequest) error {

	replacement := make([]models.CartItem, 0, len(items))
	kept := make(map[string]bool, len(items))
	now := time.Now()

	for _, req := range items {

		line := toCartItem(req)

		variant, err := s.catalog.GetVariant(ctx, line.VariantKey())
		if err != nil {
			if stderrors.Is(err, repository.ErrVariantNotFound) {
				return errors.NotFoundError("Variant not found").WithDetail(line.VariantKey().String())
			}

			return errors.DatabaseError("Failed to load variant").WithError(err)
		}

		if _, err := s.reservations.Reserve(ctx, line.VariantKey(), cart.Actor, req.Quantity); err != nil {
			return err
		}

		line.PriceSnapshot = variant.Price
		line.AddedAt = now
		line.UpdatedAt = now

		if idx := cart.FindItem(line.LineKey()); idx >= 0 {
			line.AddedAt = cart.Items[idx].AddedAt
		}

		replacement = append(replacement, line)
		kept[line.LineKey()] = true
	}

	for _, existing := range cart.Items {
		if !kept[existing.LineKey()] {
			if err := s.reservations.CancelLine(ctx, cart.Actor, existing.VariantKey()); err != nil {
				return err
			}
		}
	}

	cart.Items = replacement

	return nil
}

func (s *cartService) applyRemove(ctx context.Context, cart *models.Cart, items []models.PutItemRequest) error {

	for _, req := range items {

		line := toCartItem(req)

		idx := cart.FindItem(line.LineKey())
		if idx < 0 {
			continue
		}

		if err := s.reservations.CancelLine(ctx, cart.Actor, line.VariantKey()); err != nil {
			return err
		}

		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	}

	return nil
}

func (s *cartService) applyClear(ctx context.Context, cart *models.Cart) error {

	if err := s.reservations.CancelAll(ctx, cart.Actor); err != nil {
		return err
	}

	cart.Items = []models.CartItem{}

	return nil
}

// commit performs the CAS write and synchronously refreshes the cache so a
// stale entry never survives a successful store write.
func (s *cartService) commit(ctx context.Context, cart *models.Cart, expectedVersion int64, created bool) error {

	logger := middleware.LoggerFromContext(ctx)

	var err error

	if created {
		err = s.repo.Create(ctx, cart)

		// A concurrent first-add can win the insert race; surface it as
		// a version conflict so the caller retries from fresh state.
		if err != nil {
			if actual, versionErr := s.repo.CurrentVersion(ctx, cart.Actor); versionErr == nil {
				return &errors.ConflictError{Expected: expectedVersion, Actual: actual}
			}

			return errors.DatabaseError("Failed to write cart").WithError(err)
		}
	} else {
		err = s.repo.UpdateCAS(ctx, cart, expectedVersion)
	}

	if err != nil {

		if stderrors.Is(err, repository.ErrVersionConflict) {

			actual, versionErr := s.repo.CurrentVersion(ctx, cart.Actor)
			if versionErr != nil {
				actual = 0
			}

			return &errors.ConflictError{Expected: expectedVersion, Actual: actual}
		}

		return errors.DatabaseError("Failed to write cart").WithError(err)
	}

	key := cache.Key(cache.CartKeyPrefix, cart.Actor.Key())

	if err := s.cache.Set(ctx, key, cart, s.cacheTTL); err != nil {
		logger.Warn("Cart cache refresh failed, evicting key", slog.String("error", err.Error()))

		if err := s.cache.Delete(ctx, key); err != nil {
			logger.Warn("Cart cache eviction failed", slog.String("error", err.Error()))
		}
	}

	return nil
}

// cartOpResult keeps the conflict counter honest: only actual CAS losses
// count as "conflict", everything else is "error".
func cartOpResult(err error) string {
	if _, ok := errors.IsConflict(err); ok {
		return "conflict"
	}

	return "error"
}

func toCartItem(req models.PutItemRequest) models.CartItem {
	return models.CartItem{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Name:      req.Name,
		SKU:       req.SKU,
		Label:     req.Label,
		Slug:      req.Slug,
		Image:     req.Image,
	}
}
