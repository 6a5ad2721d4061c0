package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/models"
	"github.com/stretchr/testify/mock"
)

type CartRepository struct {
	mock.Mock
}

func (m *CartRepository) GetByActor(ctx context.Context, actor models.Actor) (*models.Cart, error) {
	args := m.Called(ctx, actor)

	if cart, ok := args.Get(0).(*models.Cart); ok {
		return cart, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *CartRepository) Create(ctx context.Context, cart *models.Cart) error {
	return m.Called(ctx, cart).Error(0)
}

func (m *CartRepository) UpdateCAS(ctx context.Context, cart *models.Cart, expectedVersion int64) error {
	return m.Called(ctx, cart, expectedVersion).Error(0)
}

func (m *CartRepository) CurrentVersion(ctx context.Context, actor models.Actor) (int64, error) {
	args := m.Called(ctx, actor)

	return args.Get(0).(int64), args.Error(1)
}

func (m *CartRepository) DeleteByActor(ctx context.Context, actor models.Actor) error {
	return m.Called(ctx, actor).Error(0)
}

func (m *CartRepository) ReplaceAndDelete(ctx context.Context, userCart *models.Cart, expectedVersion int64, guest models.Actor) error {
	return m.Called(ctx, userCart, expectedVersion, guest).Error(0)
}

type CatalogRepository struct {
	mock.Mock
}

func (m *CatalogRepository) GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	args := m.Called(ctx, id)

	if variant, ok := args.Get(0).(*models.Variant); ok {
		return variant, args.Error(1)
	}

	return nil, args.Error(1)
}

type ReservationRepository struct {
	mock.Mock
}

func (m *ReservationRepository) Reserve(ctx context.Context, variantID uuid.UUID, actorKey string, quantity int, ttl time.Duration) (*models.Reservation, error) {
	args := m.Called(ctx, variantID, actorKey, quantity, ttl)

	if reservation, ok := args.Get(0).(*models.Reservation); ok {
		return reservation, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *ReservationRepository) Extend(ctx context.Context, id uuid.UUID, ttl time.Duration) error {
	return m.Called(ctx, id, ttl).Error(0)
}

func (m *ReservationRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *ReservationRepository) CancelForActor(ctx context.Context, actorKey string, variantID uuid.UUID) error {
	return m.Called(ctx, actorKey, variantID).Error(0)
}

func (m *ReservationRepository) CancelAllForActor(ctx context.Context, actorKey string) error {
	return m.Called(ctx, actorKey).Error(0)
}

func (m *ReservationRepository) Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *ReservationRepository) GetActive(ctx context.Context, variantID uuid.UUID, actorKey string) (*models.Reservation, error) {
	args := m.Called(ctx, variantID, actorKey)

	if reservation, ok := args.Get(0).(*models.Reservation); ok {
		return reservation, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *ReservationRepository) ActiveForActor(ctx context.Context, actorKey string) ([]models.Reservation, error) {
	args := m.Called(ctx, actorKey)

	if reservations, ok := args.Get(0).([]models.Reservation); ok {
		return reservations, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *ReservationRepository) SweepExpired(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)

	if ids, ok := args.Get(0).([]uuid.UUID); ok {
		return ids, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *ReservationRepository) Available(ctx context.Context, variantID uuid.UUID, excludeActor string) (*models.Availability, error) {
	args := m.Called(ctx, variantID, excludeActor)

	if availability, ok := args.Get(0).(*models.Availability); ok {
		return availability, args.Error(1)
	}

	return nil, args.Error(1)
}

type CounterRepository struct {
	mock.Mock
}

func (m *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	args := m.Called(ctx, name)

	return args.Get(0).(int64), args.Error(1)
}

type OrderRepository struct {
	mock.Mock
}

func (m *OrderRepository) Create(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	return m.Called(ctx, tx, order).Error(0)
}

type Cache struct {
	mock.Mock
}

func (m *Cache) Get(ctx context.Context, key string, value any) (bool, error) {
	args := m.Called(ctx, key, value)

	return args.Bool(0), args.Error(1)
}

func (m *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *Cache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *Cache) Close() error {
	return m.Called().Error(0)
}

type SequenceService struct {
	mock.Mock
}

func (m *SequenceService) NextOrderID(ctx context.Context) (string, error) {
	args := m.Called(ctx)

	return args.String(0), args.Error(1)
}

func (m *SequenceService) NextRefID(ctx context.Context) (string, error) {
	args := m.Called(ctx)

	return args.String(0), args.Error(1)
}
