package service_test

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/storefrontcore/cart-service/internal/cache"
	apperrors "github.com/storefrontcore/cart-service/internal/errors"
	"github.com/storefrontcore/cart-service/internal/models"
	repository "github.com/storefrontcore/cart-service/internal/repositories"
	service "github.com/storefrontcore/cart-service/internal/services"
	"github.com/storefrontcore/cart-service/internal/services/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testCurrency = "USD"

type cartFixture struct {
	repo         *mocks.CartRepository
	catalog      *mocks.CatalogRepository
	reservations *mocks.ReservationService
	cache        *mocks.Cache
	service      service.CartService
}

func setupCart(t *testing.T) *cartFixture {
	t.Helper()

	f := &cartFixture{
		repo:         new(mocks.CartRepository),
		catalog:      new(mocks.CatalogRepository),
		reservations: new(mocks.ReservationService),
		cache:        new(mocks.Cache),
	}
	f.service = service.NewCartService(f.repo, f.catalog, f.reservations, f.cache, testCurrency, 30*time.Minute)

	return f
}

func (f *cartFixture) assertExpectations(t *testing.T) {
	t.Helper()

	f.repo.AssertExpectations(t)
	f.catalog.AssertExpectations(t)
	f.reservations.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func storedCart(actor models.Actor, version int64, items ...models.CartItem) *models.Cart {
	if items == nil {
		items = []models.CartItem{}
	}

	return &models.Cart{
		ID:       uuid.New(),
		Actor:    actor,
		Items:    items,
		Currency: testCurrency,
		Version:  version,
	}
}

func cartLine(productID uuid.UUID, quantity int, price float64) models.CartItem {
	return models.CartItem{
		ProductID:     productID,
		Quantity:      quantity,
		PriceSnapshot: decimal.NewFromFloat(price),
		AddedAt:       time.Now().Add(-time.Hour),
		UpdatedAt:     time.Now().Add(-time.Hour),
	}
}

func TestGetCart(t *testing.T) {
	ctx := t.Context()
	actor := models.UserActor(uuid.New())
	key := cache.Key(cache.CartKeyPrefix, actor.Key())

	t.Run("Success - Cache Hit", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		cached := storedCart(actor, 3, cartLine(uuid.New(), 2, 19.99))

		f.cache.On("Get", ctx, key, mock.Anything).
			Run(func(args mock.Arguments) {
				*args.Get(2).(*models.Cart) = *cached
			}).
			Return(true, nil).Once()

		// Act
		cart, err := f.service.GetCart(ctx, actor)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, cached.ID, cart.ID)
		assert.Equal(t, int64(3), cart.Version)
		f.repo.AssertNotCalled(t, "GetByActor")
		f.assertExpectations(t)
	})

	t.Run("Success - Cache Miss Falls Through To Store", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 5, cartLine(uuid.New(), 1, 9.50))

		f.cache.On("Get", ctx, key, mock.Anything).Return(false, nil).Once()
		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.cache.On("Set", ctx, key, stored, 30*time.Minute).Return(nil).Once()

		// Act
		cart, err := f.service.GetCart(ctx, actor)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, stored, cart)
		f.assertExpectations(t)
	})

	t.Run("Success - Cache Failure Is Not Fatal", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 1)

		f.cache.On("Get", ctx, key, mock.Anything).Return(false, errors.New("redis down")).Once()
		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.cache.On("Set", ctx, key, stored, 30*time.Minute).Return(errors.New("redis down")).Once()

		// Act
		cart, err := f.service.GetCart(ctx, actor)

		// Assert
		require.NoError(t, err, "a dead cache must not fail the read")
		assert.Equal(t, stored, cart)
		f.assertExpectations(t)
	})

	t.Run("Success - No Cart Yet Returns Empty At Version Zero", func(t *testing.T) {
		// Arrange
		f := setupCart(t)

		f.cache.On("Get", ctx, key, mock.Anything).Return(false, nil).Once()
		f.repo.On("GetByActor", ctx, actor).Return(nil, sql.ErrNoRows).Once()

		// Act
		cart, err := f.service.GetCart(ctx, actor)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, actor, cart.Actor)
		assert.Empty(t, cart.Items)
		assert.Equal(t, int64(0), cart.Version)
		assert.Equal(t, testCurrency, cart.Currency)
		f.assertExpectations(t)
	})

	t.Run("Failure - Store Error", func(t *testing.T) {
		// Arrange
		f := setupCart(t)

		f.cache.On("Get", ctx, key, mock.Anything).Return(false, nil).Once()
		f.repo.On("GetByActor", ctx, actor).Return(nil, errors.New("connection refused")).Once()

		// Act
		cart, err := f.service.GetCart(ctx, actor)

		// Assert
		require.Error(t, err)
		assert.Nil(t, cart)

		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeDatabaseError, appErr.Code)
		f.assertExpectations(t)
	})
}

func TestPutCart_Add(t *testing.T) {
	ctx := t.Context()
	actor := models.UserActor(uuid.New())
	key := cache.Key(cache.CartKeyPrefix, actor.Key())
	productID := uuid.New()

	t.Run("Success - Increments Existing Line And Reserves Full Quantity", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 3, cartLine(productID, 1, 10.00))
		variant := &models.Variant{ID: productID, Price: decimal.NewFromFloat(12.00), Stock: 50}

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.catalog.On("GetVariant", ctx, productID).Return(variant, nil).Once()
		f.reservations.On("Reserve", ctx, productID, actor, 3).
			Return(&models.Reservation{ID: uuid.New(), Quantity: 3}, nil).Once()
		f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(3)).Return(nil).Once()
		f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   3,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 2}},
		}

		// Act
		cart, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 3, cart.Items[0].Quantity, "add is a delta on the existing line")
		assert.True(t, cart.Items[0].PriceSnapshot.Equal(variant.Price), "price snapshot refreshed from the catalog")
		f.assertExpectations(t)
	})

	t.Run("Success - First Mutation Creates The Cart", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		variant := &models.Variant{ID: productID, Price: decimal.NewFromFloat(5.25), Stock: 10}

		f.repo.On("GetByActor", ctx, actor).Return(nil, sql.ErrNoRows).Once()
		f.catalog.On("GetVariant", ctx, productID).Return(variant, nil).Once()
		f.reservations.On("Reserve", ctx, productID, actor, 1).
			Return(&models.Reservation{ID: uuid.New(), Quantity: 1}, nil).Once()
		f.repo.On("Create", ctx, mock.AnythingOfType("*models.Cart")).Return(nil).Once()
		f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   0,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		}

		// Act
		cart, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 1, cart.Items[0].Quantity)
		f.assertExpectations(t)
	})

	t.Run("Failure - Out Of Stock Rejects The Whole Put", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 2)
		variant := &models.Variant{ID: productID, Price: decimal.NewFromFloat(10.00), Stock: 1}

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.catalog.On("GetVariant", ctx, productID).Return(variant, nil).Once()
		f.reservations.On("Reserve", ctx, productID, actor, 5).
			Return(nil, &apperrors.OutOfStockError{VariantID: productID.String(), Available: 1}).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   2,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 5}},
		}

		// Act
		cart, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.Error(t, err)
		assert.Nil(t, cart)

		oosErr, ok := apperrors.IsOutOfStock(err)
		require.True(t, ok)
		assert.Equal(t, 1, oosErr.Available)
		f.repo.AssertNotCalled(t, "UpdateCAS", mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("Failure - Unknown Variant", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 2)

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.catalog.On("GetVariant", ctx, productID).Return(nil, repository.ErrVariantNotFound).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   2,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		}

		// Act
		_, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.Error(t, err)

		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
		f.assertExpectations(t)
	})
}

func TestPutCart_VersionConflicts(t *testing.T) {
	ctx := t.Context()
	actor := models.UserActor(uuid.New())
	productID := uuid.New()

	t.Run("Failure - Stale Version Fails Fast", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 4, cartLine(productID, 1, 10.00))

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   3,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		}

		// Act
		_, err := f.service.PutCart(ctx, actor, req)

		// Assert
		conflictErr, ok := apperrors.IsConflict(err)
		require.True(t, ok)
		assert.Equal(t, int64(3), conflictErr.Expected)
		assert.Equal(t, int64(4), conflictErr.Actual)
		f.reservations.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("Failure - CAS Race Reports Winner Version", func(t *testing.T) {
		// Both writers read version 3; the loser's CAS hits zero rows and
		// must report the winner's committed version back to the caller.

		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 3, cartLine(productID, 1, 10.00))
		variant := &models.Variant{ID: productID, Price: decimal.NewFromFloat(10.00), Stock: 50}

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.catalog.On("GetVariant", ctx, productID).Return(variant, nil).Once()
		f.reservations.On("Reserve", ctx, productID, actor, 2).
			Return(&models.Reservation{ID: uuid.New(), Quantity: 2}, nil).Once()
		f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(3)).
			Return(repository.ErrVersionConflict).Once()
		f.repo.On("CurrentVersion", ctx, actor).Return(int64(4), nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   3,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		}

		// Act
		_, err := f.service.PutCart(ctx, actor, req)

		// Assert
		conflictErr, ok := apperrors.IsConflict(err)
		require.True(t, ok)
		assert.Equal(t, int64(3), conflictErr.Expected)
		assert.Equal(t, int64(4), conflictErr.Actual)
		f.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("Failure - Nonzero Version Against Missing Cart", func(t *testing.T) {
		// Arrange
		f := setupCart(t)

		f.repo.On("GetByActor", ctx, actor).Return(nil, sql.ErrNoRows).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   7,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		}

		// Act
		_, err := f.service.PutCart(ctx, actor, req)

		// Assert
		conflictErr, ok := apperrors.IsConflict(err)
		require.True(t, ok)
		assert.Equal(t, int64(7), conflictErr.Expected)
		assert.Equal(t, int64(0), conflictErr.Actual)
		f.assertExpectations(t)
	})

	t.Run("Failure - Insert Race On First Mutation", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		variant := &models.Variant{ID: productID, Price: decimal.NewFromFloat(5.00), Stock: 10}

		f.repo.On("GetByActor", ctx, actor).Return(nil, sql.ErrNoRows).Once()
		f.catalog.On("GetVariant", ctx, productID).Return(variant, nil).Once()
		f.reservations.On("Reserve", ctx, productID, actor, 1).
			Return(&models.Reservation{ID: uuid.New(), Quantity: 1}, nil).Once()
		f.repo.On("Create", ctx, mock.AnythingOfType("*models.Cart")).
			Return(errors.New("duplicate key value violates unique constraint")).Once()
		f.repo.On("CurrentVersion", ctx, actor).Return(int64(1), nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   0,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		}

		// Act
		_, err := f.service.PutCart(ctx, actor, req)

		// Assert
		conflictErr, ok := apperrors.IsConflict(err)
		require.True(t, ok)
		assert.Equal(t, int64(0), conflictErr.Expected)
		assert.Equal(t, int64(1), conflictErr.Actual)
		f.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})
}

func TestPutCart_UpdateRemoveClear(t *testing.T) {
	ctx := t.Context()
	actor := models.GuestActor("sess-42")
	key := cache.Key(cache.CartKeyPrefix, actor.Key())
	keptID := uuid.New()
	droppedID := uuid.New()

	t.Run("Success - Update Replaces List And Cancels Dropped Holds", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 6, cartLine(keptID, 1, 10.00), cartLine(droppedID, 2, 4.00))
		variant := &models.Variant{ID: keptID, Price: decimal.NewFromFloat(10.00), Stock: 50}

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.catalog.On("GetVariant", ctx, keptID).Return(variant, nil).Once()
		f.reservations.On("Reserve", ctx, keptID, actor, 4).
			Return(&models.Reservation{ID: uuid.New(), Quantity: 4}, nil).Once()
		f.reservations.On("CancelLine", ctx, actor, droppedID).Return(nil).Once()
		f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(6)).Return(nil).Once()
		f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpUpdate,
			Version:   6,
			Items:     []models.PutItemRequest{{ProductID: keptID, Quantity: 4}},
		}

		// Act
		cart, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, keptID, cart.Items[0].ProductID)
		assert.Equal(t, 4, cart.Items[0].Quantity, "update sets the absolute quantity")
		f.assertExpectations(t)
	})

	t.Run("Success - Remove Releases The Line Hold", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 2, cartLine(keptID, 1, 10.00), cartLine(droppedID, 2, 4.00))

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.reservations.On("CancelLine", ctx, actor, droppedID).Return(nil).Once()
		f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(2)).Return(nil).Once()
		f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpRemove,
			Version:   2,
			Items:     []models.PutItemRequest{{ProductID: droppedID, Quantity: 1}},
		}

		// Act
		cart, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, keptID, cart.Items[0].ProductID)
		f.assertExpectations(t)
	})

	t.Run("Success - Remove Of Absent Line Is A No-Op", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 2, cartLine(keptID, 1, 10.00))

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(2)).Return(nil).Once()
		f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(nil).Once()

		req := &models.PutCartRequest{
			Operation: models.OpRemove,
			Version:   2,
			Items:     []models.PutItemRequest{{ProductID: droppedID, Quantity: 1}},
		}

		// Act
		cart, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.NoError(t, err)
		assert.Len(t, cart.Items, 1)
		f.reservations.AssertNotCalled(t, "CancelLine", mock.Anything, mock.Anything, mock.Anything)
		f.assertExpectations(t)
	})

	t.Run("Success - Clear Cancels Every Hold", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 9, cartLine(keptID, 1, 10.00), cartLine(droppedID, 2, 4.00))

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.reservations.On("CancelAll", ctx, actor).Return(nil).Once()
		f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(9)).Return(nil).Once()
		f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(nil).Once()

		req := &models.PutCartRequest{Operation: models.OpClear, Version: 9}

		// Act
		cart, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		f.assertExpectations(t)
	})

	t.Run("Success - Cache Refresh Failure Evicts Instead", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		stored := storedCart(actor, 9, cartLine(keptID, 1, 10.00))

		f.repo.On("GetByActor", ctx, actor).Return(stored, nil).Once()
		f.reservations.On("CancelAll", ctx, actor).Return(nil).Once()
		f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(9)).Return(nil).Once()
		f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(errors.New("redis down")).Once()
		f.cache.On("Delete", ctx, key).Return(nil).Once()

		req := &models.PutCartRequest{Operation: models.OpClear, Version: 9}

		// Act
		_, err := f.service.PutCart(ctx, actor, req)

		// Assert
		require.NoError(t, err, "cache trouble after a committed write is not an error")
		f.assertExpectations(t)
	})
}

func TestPutCart_NetEffect(t *testing.T) {
	// Adding then removing the same line lands the cart back where it
	// started, with the stock hold released.
	ctx := t.Context()
	actor := models.UserActor(uuid.New())
	key := cache.Key(cache.CartKeyPrefix, actor.Key())
	productID := uuid.New()

	// Arrange
	f := setupCart(t)
	variant := &models.Variant{ID: productID, Price: decimal.NewFromFloat(10.00), Stock: 50}

	f.repo.On("GetByActor", ctx, actor).Return(nil, sql.ErrNoRows).Once()
	f.catalog.On("GetVariant", ctx, productID).Return(variant, nil).Once()
	f.reservations.On("Reserve", ctx, productID, actor, 2).
		Return(&models.Reservation{ID: uuid.New(), Quantity: 2}, nil).Once()
	f.repo.On("Create", ctx, mock.AnythingOfType("*models.Cart")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Cart).Version = 1
		}).
		Return(nil).Once()
	f.cache.On("Set", ctx, key, mock.Anything, 30*time.Minute).Return(nil).Twice()

	// Act
	afterAdd, err := f.service.PutCart(ctx, actor, &models.PutCartRequest{
		Operation: models.OpAdd,
		Version:   0,
		Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 2}},
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, afterAdd.Items, 1)

	// Arrange the removal against the committed state
	f.repo.On("GetByActor", ctx, actor).Return(afterAdd, nil).Once()
	f.reservations.On("CancelLine", ctx, actor, productID).Return(nil).Once()
	f.repo.On("UpdateCAS", ctx, mock.AnythingOfType("*models.Cart"), int64(1)).Return(nil).Once()

	// Act
	afterRemove, err := f.service.PutCart(ctx, actor, &models.PutCartRequest{
		Operation: models.OpRemove,
		Version:   afterAdd.Version,
		Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 2}},
	})

	// Assert
	require.NoError(t, err)
	assert.Empty(t, afterRemove.Items, "the cart is back to its starting state")
	f.assertExpectations(t)
}

// cartOpCount reads the current value of the cart mutation counter for one
// (operation, result) pair from the default registry.
func cartOpCount(t *testing.T, operation, result string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != "cart_operations_total" {
			continue
		}

		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}

			if labels["operation"] == operation && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}

	return 0
}

func TestPutCart_Outcomes(t *testing.T) {
	ctx := t.Context()
	actor := models.UserActor(uuid.New())
	productID := uuid.New()

	t.Run("Store Error Counts As Error Not Conflict", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		errorsBefore := cartOpCount(t, "add", "error")
		conflictsBefore := cartOpCount(t, "add", "conflict")

		f.repo.On("GetByActor", ctx, actor).Return(nil, errors.New("connection refused")).Once()

		// Act
		_, err := f.service.PutCart(ctx, actor, &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   0,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		})

		// Assert
		require.Error(t, err)

		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeDatabaseError, appErr.Code)

		assert.Equal(t, errorsBefore+1, cartOpCount(t, "add", "error"))
		assert.Equal(t, conflictsBefore, cartOpCount(t, "add", "conflict"))
		f.assertExpectations(t)
	})

	t.Run("CAS Loss Counts As Conflict", func(t *testing.T) {
		// Arrange
		f := setupCart(t)
		errorsBefore := cartOpCount(t, "add", "error")
		conflictsBefore := cartOpCount(t, "add", "conflict")

		f.repo.On("GetByActor", ctx, actor).Return(storedCart(actor, 4), nil).Once()

		// Act
		_, err := f.service.PutCart(ctx, actor, &models.PutCartRequest{
			Operation: models.OpAdd,
			Version:   3,
			Items:     []models.PutItemRequest{{ProductID: productID, Quantity: 1}},
		})

		// Assert
		_, ok := apperrors.IsConflict(err)
		require.True(t, ok)

		assert.Equal(t, conflictsBefore+1, cartOpCount(t, "add", "conflict"))
		assert.Equal(t, errorsBefore, cartOpCount(t, "add", "error"))
		f.assertExpectations(t)
	})
}
