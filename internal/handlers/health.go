package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/respond"
)

const healthTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	Check HealthCheck
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) error {
	if h.Check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.Check(ctx); err != nil {
			return apperr.Dependency("store unavailable", err)
		}
	}

	respond.JSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"}, "healthy")
	return nil
}
