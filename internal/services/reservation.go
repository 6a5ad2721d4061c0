package service

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/config"
	"github.com/storefrontcore/cart-service/internal/errors"
	"github.com/storefrontcore/cart-service/internal/metrics"
	"github.com/storefrontcore/cart-service/internal/models"
	repository "github.com/storefrontcore/cart-service/internal/repositories"
)

// ReservationService is the only path allowed to change available-to-sell.
// Stock is held through Reserve, released through Cancel or expiry, and
// permanently decremented through Consume inside an order transaction.
type ReservationService interface {
	Reserve(ctx context.Context, variantID uuid.UUID, actor models.Actor, quantity int) (*models.Reservation, error)
	Extend(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	CancelLine(ctx context.Context, actor models.Actor, variantID uuid.UUID) error
	CancelAll(ctx context.Context, actor models.Actor) error
	Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	ActiveFor(ctx context.Context, variantID uuid.UUID, actor models.Actor) (*models.Reservation, error)
	Available(ctx context.Context, variantID uuid.UUID) (*models.Availability, error)
	SweepExpired(ctx context.Context) ([]uuid.UUID, error)
}

type reservationService struct {
	repo repository.ReservationRepository
	cfg  *config.ReservationConfig
}

func NewReservationService(repo repository.ReservationRepository, cfg *config.ReservationConfig) ReservationService {
	return &reservationService{repo: repo, cfg: cfg}
}

// Reserve acquires or replaces the actor's hold for the variant's full new
// quantity. OutOfStock is surfaced verbatim and never retried; infra
// errors get a bounded exponential backoff before ServiceUnavailable.
func (s *reservationService) Reserve(ctx context.Context, variantID uuid.UUID, actor models.Actor, quantity int) (*models.Reservation, error) {

	var reservation *models.Reservation

	operation := func() error {

		result, err := s.repo.Reserve(ctx, variantID, actor.Key(), quantity, s.cfg.TTL)
		if err != nil {
			if stderrors.Is(err, repository.ErrInsufficientStock) || stderrors.Is(err, repository.ErrVariantNotFound) {
				return backoff.Permanent(err)
			}

			return err
		}

		reservation = result

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {

		if stderrors.Is(err, repository.ErrInsufficientStock) {
			metrics.ObserveReservation("out_of_stock")

			return nil, s.outOfStock(ctx, variantID, actor)
		}

		if stderrors.Is(err, repository.ErrVariantNotFound) {
			return nil, errors.NotFoundError("Variant not found").WithDetail(variantID.String())
		}

		metrics.ObserveReservation("unavailable")

		return nil, errors.ServiceUnavailableError("Reservation store unreachable").WithError(err)
	}

	metrics.ObserveReservation("reserved")

	return reservation, nil
}

// outOfStock builds the user-facing error with the quantity that could
// still be reserved, excluding this actor's own replaceable hold.
func (s *reservationService) outOfStock(ctx context.Context, variantID uuid.UUID, actor models.Actor) error {

	available := 0

	if availability, err := s.repo.Available(ctx, variantID, actor.Key()); err == nil {
		available = availability.Available
	}

	return &errors.OutOfStockError{VariantID: variantID.String(), Available: available}
}

func (s *reservationService) Extend(ctx context.Context, id uuid.UUID) error {

	err := s.repo.Extend(ctx, id, s.cfg.TTL)
	if err != nil {
		// An already-lapsed hold cannot slide forward; the caller must
		// re-reserve through the availability check.
		if stderrors.Is(err, repository.ErrReservationNotActive) {
			return err
		}

		return errors.ServiceUnavailableError("Reservation store unreachable").WithError(err)
	}

	return nil
}

func (s *reservationService) Cancel(ctx context.Context, id uuid.UUID) error {

	err := s.repo.Cancel(ctx, id)
	if err != nil {
		// Absent or already-settled reservation: cancelling is a no-op.
		if stderrors.Is(err, repository.ErrReservationNotActive) {
			return nil
		}

		return errors.ServiceUnavailableError("Reservation store unreachable").WithError(err)
	}

	metrics.ObserveReservation("cancelled")

	return nil
}

func (s *reservationService) CancelLine(ctx context.Context, actor models.Actor, variantID uuid.UUID) error {

	if err := s.repo.CancelForActor(ctx, actor.Key(), variantID); err != nil {
		return errors.ServiceUnavailableError("Reservation store unreachable").WithError(err)
	}

	return nil
}

func (s *reservationService) CancelAll(ctx context.Context, actor models.Actor) error {

	if err := s.repo.CancelAllForActor(ctx, actor.Key()); err != nil {
		return errors.ServiceUnavailableError("Reservation store unreachable").WithError(err)
	}

	return nil
}

func (s *reservationService) Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	return s.repo.Consume(ctx, tx, id)
}

func (s *reservationService) ActiveFor(ctx context.Context, variantID uuid.UUID, actor models.Actor) (*models.Reservation, error) {
	return s.repo.GetActive(ctx, variantID, actor.Key())
}

func (s *reservationService) Available(ctx context.Context, variantID uuid.UUID) (*models.Availability, error) {

	availability, err := s.repo.Available(ctx, variantID, "")
	if err != nil {
		if stderrors.Is(err, repository.ErrVariantNotFound) {
			return nil, errors.NotFoundError("Variant not found").WithError(err)
		}

		return nil, errors.DatabaseError("Failed to compute availability").WithError(err)
	}

	return availability, nil
}

func (s *reservationService) SweepExpired(ctx context.Context) ([]uuid.UUID, error) {

	ids, err := s.repo.SweepExpired(ctx)
	if err != nil {
		return nil, errors.DatabaseError("Failed to sweep expired reservations").WithError(err)
	}

	metrics.ObserveSweep(len(ids))

	return ids, nil
}
