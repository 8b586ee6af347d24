package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/ashplayer/backend/internal/apperror"
)

// ContactHandler implements the /db/contacts endpoints.
type ContactHandler struct {
	Contacts ContactService
	Limiter  RateLimiter
}

type addContactRequest struct {
	Email string `json:"email"`
}

type deleteContactRequest struct {
	UID string `json:"uid"`
}

// Add handles POST /db/contacts.
func (h ContactHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	if !allowRequest(h.Limiter, r, "contacts") {
		RespondError(ctx, w, apperror.RateLimited())
		return
	}

	var req addContactRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(ctx, w, err)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		RespondError(ctx, w, apperror.Validation("email must be a valid email address"))
		return
	}

	if err := h.Contacts.Add(ctx, id.UID, req.Email); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "User was added to contacts.")
}

// Remove handles DELETE /db/contacts.
func (h ContactHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	var req deleteContactRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(ctx, w, err)
		return
	}
	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" || strings.Contains(req.UID, ".") {
		RespondError(ctx, w, apperror.Validation("uid is required and must not contain '.'"))
		return
	}

	if err := h.Contacts.Remove(ctx, id.UID, req.UID); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "User was removed from contacts.")
}
