package service

import (
	"context"
	"fmt"

	"github.com/storefrontcore/cart-service/internal/config"
	"github.com/storefrontcore/cart-service/internal/errors"
	repository "github.com/storefrontcore/cart-service/internal/repositories"
)

const (
	orderCounterName = "order_number"
	refCounterName   = "order_reference"
)

// SequenceService produces sequential human-readable order and reference
// identifiers. Uniqueness rests entirely on the counter repository's
// atomic increment-and-return; a collision would mean that primitive is
// broken, so it is treated as structurally unreachable.
type SequenceService interface {
	NextOrderID(ctx context.Context) (string, error)
	NextRefID(ctx context.Context) (string, error)
}

type sequenceService struct {
	repo repository.CounterRepository
	cfg  *config.SequenceConfig
}

func NewSequenceService(repo repository.CounterRepository, cfg *config.SequenceConfig) SequenceService {
	return &sequenceService{repo: repo, cfg: cfg}
}

func (s *sequenceService) NextOrderID(ctx context.Context) (string, error) {
	return s.next(ctx, orderCounterName, s.cfg.OrderPrefix, s.cfg.OrderPad)
}

func (s *sequenceService) NextRefID(ctx context.Context) (string, error) {
	return s.next(ctx, refCounterName, s.cfg.RefPrefix, s.cfg.RefPad)
}

func (s *sequenceService) next(ctx context.Context, name, prefix string, pad int) (string, error) {

	seq, err := s.repo.Next(ctx, name)
	if err != nil {
		return "", errors.DatabaseError("Failed to generate identifier").WithError(err)
	}

	return fmt.Sprintf("%s%0*d", prefix, pad, seq), nil
}
