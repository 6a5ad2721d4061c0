package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/errors"
	"github.com/storefrontcore/cart-service/internal/models"
)

// actorFromRequest resolves the calling actor from the headers the
// external session layer sets: X-User-ID for authenticated users,
// X-Guest-ID for anonymous sessions. A user header wins when both are
// present (the merge endpoint reads both explicitly).
func actorFromRequest(r *http.Request) (models.Actor, error) {

	if userID := r.Header.Get("X-User-ID"); userID != "" {

		id, err := uuid.Parse(userID)
		if err != nil {
			return models.Actor{}, errors.BadRequestError("Invalid X-User-ID header")
		}

		return models.UserActor(id), nil
	}

	if guestID := r.Header.Get("X-Guest-ID"); guestID != "" {
		return models.GuestActor(guestID), nil
	}

	return models.Actor{}, errors.BadRequestError("An X-User-ID or X-Guest-ID header is required")
}
