package testutils

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/storefrontcore/cart-service/internal/api/middleware"
	"github.com/storefrontcore/cart-service/internal/models"
)

// CreateTestRequest builds a request carrying the actor headers the
// session layer would set, plus a discard logger in context.
func CreateTestRequest(method, target string, body io.Reader, actor models.Actor, pathParams map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)

	for key, value := range pathParams {
		req.SetPathValue(key, value)
	}

	switch actor.Kind {
	case models.ActorUser:
		req.Header.Set("X-User-ID", actor.ID)
	case models.ActorGuest:
		req.Header.Set("X-Guest-ID", actor.ID)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.WithValue(req.Context(), middleware.LoggerKey, logger)

	return req.WithContext(ctx)
}
