package handlers

import (
	"log/slog"
	"net/http"

	"github.com/storefrontcore/cart-service/internal/api/middleware"
	service "github.com/storefrontcore/cart-service/internal/services"
	"github.com/storefrontcore/cart-service/internal/utils/response"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func (h *CheckoutHandler) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		actor, err := actorFromRequest(r)
		if err != nil {
			response.Error(w, err)

			return
		}

		order, err := h.checkoutService.Checkout(r.Context(), actor)
		if err != nil {
			logger.Warn("Checkout rejected",
				slog.String("actor", actor.Key()),
				slog.String("error", err.Error()))
			response.Error(w, err)

			return
		}

		response.Success(w, http.StatusCreated, order)
	}
}
