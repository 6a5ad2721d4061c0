package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/storefrontcore/cart-service/internal/api/middleware"
	"github.com/storefrontcore/cart-service/internal/errors"
	"github.com/storefrontcore/cart-service/internal/models"
	service "github.com/storefrontcore/cart-service/internal/services"
	"github.com/storefrontcore/cart-service/internal/utils"
	"github.com/storefrontcore/cart-service/internal/utils/response"
)

type CartHandler struct {
	cartService  service.CartService
	mergeService service.MergeService
	validator    *validator.Validate
}

func NewCartHandler(cartService service.CartService, mergeService service.MergeService) *CartHandler {
	return &CartHandler{
		cartService:  cartService,
		mergeService: mergeService,
		validator:    validator.New(),
	}
}

func (h *CartHandler) GetCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		actor, err := actorFromRequest(r)
		if err != nil {
			response.Error(w, err)

			return
		}

		cart, err := h.cartService.GetCart(r.Context(), actor)
		if err != nil {
			response.Error(w, err)

			return
		}

		response.Success(w, http.StatusOK, cart)
	}
}

func (h *CartHandler) PutCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		actor, err := actorFromRequest(r)
		if err != nil {
			response.Error(w, err)

			return
		}

		var req models.PutCartRequest

		if err := utils.DecodeJSONBody(r, &req); err != nil {
			response.Error(w, errors.BadRequestError(err.Error()))

			return
		}

		if err := utils.ValidateStruct(h.validator, &req); err != nil {
			response.Error(w, errors.ValidationError("Invalid cart payload").WithError(err))

			return
		}

		cart, err := h.cartService.PutCart(r.Context(), actor, &req)
		if err != nil {
			logger.Warn("Cart mutation rejected",
				slog.String("operation", string(req.Operation)),
				slog.String("actor", actor.Key()),
				slog.String("error", err.Error()))
			response.Error(w, err)

			return
		}

		response.Success(w, http.StatusOK, cart)
	}
}

// MergeCarts is the login-event hook: the session layer calls it once it
// has assigned the guest session a user identity.
func (h *CartHandler) MergeCarts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		userID := r.Header.Get("X-User-ID")
		guestID := r.Header.Get("X-Guest-ID")

		if userID == "" || guestID == "" {
			response.Error(w, errors.BadRequestError("Merge requires both X-User-ID and X-Guest-ID headers"))

			return
		}

		id, err := uuid.Parse(userID)
		if err != nil {
			response.Error(w, errors.BadRequestError("Invalid X-User-ID header"))

			return
		}

		result, err := h.mergeService.Merge(r.Context(), models.GuestActor(guestID), models.UserActor(id))
		if err != nil {
			logger.Error("Cart merge failed",
				slog.String("guest", guestID),
				slog.String("user", userID),
				slog.String("error", err.Error()))
			response.Error(w, err)

			return
		}

		logger.Info("Cart merge completed",
			slog.String("guest", guestID),
			slog.String("user", userID),
			slog.Bool("merged", result.Merged))
		response.Success(w, http.StatusOK, result)
	}
}
