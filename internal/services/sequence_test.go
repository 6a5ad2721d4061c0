package service_test

import (
	"errors"
	"testing"

	"github.com/storefrontcore/cart-service/internal/config"
	apperrors "github.com/storefrontcore/cart-service/internal/errors"
	service "github.com/storefrontcore/cart-service/internal/services"
	"github.com/storefrontcore/cart-service/internal/services/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSequences(t *testing.T) (service.SequenceService, *mocks.CounterRepository) {
	t.Helper()

	repo := new(mocks.CounterRepository)
	cfg := &config.SequenceConfig{
		OrderPrefix: "ORD-",
		OrderPad:    6,
		RefPrefix:   "REF-",
		RefPad:      8,
	}

	return service.NewSequenceService(repo, cfg), repo
}

func TestNextOrderID(t *testing.T) {
	ctx := t.Context()

	t.Run("Success - Sequential And Zero-Padded", func(t *testing.T) {
		// Arrange
		svc, repo := setupSequences(t)

		repo.On("Next", ctx, "order_number").Return(int64(42), nil).Once()
		repo.On("Next", ctx, "order_number").Return(int64(43), nil).Once()
		repo.On("Next", ctx, "order_number").Return(int64(44), nil).Once()

		// Act
		var ids []string

		for i := 0; i < 3; i++ {
			id, err := svc.NextOrderID(ctx)
			require.NoError(t, err)
			ids = append(ids, id)
		}

		// Assert
		assert.Equal(t, []string{"ORD-000042", "ORD-000043", "ORD-000044"}, ids)
		repo.AssertExpectations(t)
	})

	t.Run("Success - Pad Does Not Truncate Large Values", func(t *testing.T) {
		// Arrange
		svc, repo := setupSequences(t)

		repo.On("Next", ctx, "order_number").Return(int64(12345678), nil).Once()

		// Act
		id, err := svc.NextOrderID(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "ORD-12345678", id)
		repo.AssertExpectations(t)
	})

	t.Run("Failure - Counter Error", func(t *testing.T) {
		// Arrange
		svc, repo := setupSequences(t)

		repo.On("Next", ctx, "order_number").Return(int64(0), errors.New("connection refused")).Once()

		// Act
		id, err := svc.NextOrderID(ctx)

		// Assert
		require.Error(t, err)
		assert.Empty(t, id)

		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeDatabaseError, appErr.Code)
		repo.AssertExpectations(t)
	})
}

func TestNextRefID(t *testing.T) {
	ctx := t.Context()

	t.Run("Success - Independent Counter And Format", func(t *testing.T) {
		// Arrange
		svc, repo := setupSequences(t)

		repo.On("Next", ctx, "order_reference").Return(int64(7), nil).Once()

		// Act
		id, err := svc.NextRefID(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "REF-00000007", id)
		repo.AssertExpectations(t)
	})
}
