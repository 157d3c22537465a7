// Package respond writes the JSON envelopes returned by every API endpoint.
package respond

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/logging"
)

// Success is the envelope of a successful response.
type Success struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// Failure is the envelope of an error response.
type Failure struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

// JSON writes data in a success envelope.
func JSON(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	write(ctx, w, status, Success{StatusCode: status, Data: data, Message: message, Success: true})
}

// Error writes err in a failure envelope. Errors outside the apperr taxonomy are reported as
// a generic internal error; their cause is logged, never sent.
func Error(ctx context.Context, w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	logger := logging.FromContext(ctx)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", appErr.Kind, "error", err)
	} else {
		logger.Warn("request rejected", "kind", appErr.Kind, "status", appErr.Status, "message", appErr.Message)
	}

	details := appErr.Details
	if details == nil {
		details = []string{}
	}
	write(ctx, w, appErr.Status, Failure{
		StatusCode: appErr.Status,
		Message:    appErr.Message,
		Success:    false,
		Errors:     details,
	})
}

func write(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}
