package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/identity"
	"github.com/ashplayer/backend/internal/logging"
)

const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondMessage(ctx context.Context, w http.ResponseWriter, message string) {
	respondJSON(ctx, w, http.StatusOK, messageResponse{Message: message})
}

// RespondError renders err in the error envelope. Causes of internal errors
// are logged but never sent to the client.
func RespondError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr := apperror.As(err)
	if appErr.Err != nil {
		logging.FromContext(ctx).Error("request error cause", "code", appErr.Code, "error", appErr.Err)
	}
	respondJSON(ctx, w, appErr.Status, errorResponse{
		Error:   true,
		Message: appErr.Message,
		Code:    appErr.Code,
	})
}

// decodeJSON requires a JSON content type and decodes the body into dst.
func decodeJSON(r *http.Request, dst any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return apperror.Validation("Content-Type must be application/json")
	}

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperror.Validation(fmt.Sprintf("%s has an invalid type", typeErr.Field))
		}
		return apperror.Validation("invalid request body")
	}
	return nil
}

// caller returns the verified identity placed on the context by the
// authentication middleware.
func caller(ctx context.Context, w http.ResponseWriter) (identity.Identity, bool) {
	id, ok := identity.FromContext(ctx)
	if !ok {
		RespondError(ctx, w, apperror.Unauthorized("missing identity", nil))
		return identity.Identity{}, false
	}
	return id, true
}
