package mocks

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/models"
	"github.com/stretchr/testify/mock"
)

type CartService struct {
	mock.Mock
}

func (m *CartService) GetCart(ctx context.Context, actor models.Actor) (*models.Cart, error) {
	args := m.Called(ctx, actor)

	if cart, ok := args.Get(0).(*models.Cart); ok {
		return cart, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *CartService) PutCart(ctx context.Context, actor models.Actor, req *models.PutCartRequest) (*models.Cart, error) {
	args := m.Called(ctx, actor, req)

	if cart, ok := args.Get(0).(*models.Cart); ok {
		return cart, args.Error(1)
	}

	return nil, args.Error(1)
}

type MergeService struct {
	mock.Mock
}

func (m *MergeService) Merge(ctx context.Context, guest, user models.Actor) (*models.MergeResult, error) {
	args := m.Called(ctx, guest, user)

	if result, ok := args.Get(0).(*models.MergeResult); ok {
		return result, args.Error(1)
	}

	return nil, args.Error(1)
}

type CheckoutService struct {
	mock.Mock
}

func (m *CheckoutService) Checkout(ctx context.Context, actor models.Actor) (*models.Order, error) {
	args := m.Called(ctx, actor)

	if order, ok := args.Get(0).(*models.Order); ok {
		return order, args.Error(1)
	}

	return nil, args.Error(1)
}

type ReservationService struct {
	mock.Mock
}

func (m *ReservationService) Reserve(ctx context.Context, variantID uuid.UUID, actor models.Actor, quantity int) (*models.Reservation, error) {
	args := m.Called(ctx, variantID, actor, quantity)

	if reservation, ok := args.Get(0).(*models.Reservation); ok {
		return reservation, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *ReservationService) Extend(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *ReservationService) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *ReservationService) CancelLine(ctx context.Context, actor models.Actor, variantID uuid.UUID) error {
	return m.Called(ctx, actor, variantID).Error(0)
}

func (m *ReservationService) CancelAll(ctx context.Context, actor models.Actor) error {
	return m.Called(ctx, actor).Error(0)
}

func (m *ReservationService) Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *ReservationService) ActiveFor(ctx context.Context, variantID uuid.UUID, actor models.Actor) (*models.Reservation, error) {
	args := m.Called(ctx, variantID, actor)

	if reservation, ok := args.Get(0).(*models.Reservation); ok {
		return reservation, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *ReservationService) Available(ctx context.Context, variantID uuid.UUID) (*models.Availability, error) {
	args := m.Called(ctx, variantID)

	if availability, ok := args.Get(0).(*models.Availability); ok {
		return availability, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *ReservationService) SweepExpired(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)

	if ids, ok := args.Get(0).([]uuid.UUID); ok {
		return ids, args.Error(1)
	}

	return nil, args.Error(1)
}
