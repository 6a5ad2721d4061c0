package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/errors"
	service "github.com/storefrontcore/cart-service/internal/services"
	"github.com/storefrontcore/cart-service/internal/utils/response"
)

type InventoryHandler struct {
	reservationService service.ReservationService
}

func NewInventoryHandler(reservationService service.ReservationService) *InventoryHandler {
	return &InventoryHandler{reservationService: reservationService}
}

// Availability gives the UI layer the number it can message: raw stock
// minus every active, non-expired hold.
func (h *InventoryHandler) Availability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		variantID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			response.Error(w, errors.BadRequestError("Invalid variant id"))

			return
		}

		availability, err := h.reservationService.Available(r.Context(), variantID)
		if err != nil {
			response.Error(w, err)

			return
		}

		response.Success(w, http.StatusOK, availability)
	}
}
