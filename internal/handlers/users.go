package handlers

import (
	"net/http"
	"strings"

	"github.com/ashplayer/backend/internal/apperror"
)

// UserHandler implements the /user endpoints.
type UserHandler struct {
	Accounts AccountService
	Playback PlaybackService
	Limiter  RateLimiter
}

type registerRequest struct {
	Name string `json:"name"`
}

type inviteRequest struct {
	User    string `json:"user"`
	Session string `json:"session"`
}

type invitationRequest struct {
	ID string `json:"id"`
}

type invitationView struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Session string `json:"session"`
}

type invitationsResponse struct {
	Invitations []invitationView `json:"invitations"`
}

// Register handles POST /user/register.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	if !allowRequest(h.Limiter, r, "register") {
		RespondError(ctx, w, apperror.RateLimited())
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(ctx, w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		RespondError(ctx, w, apperror.Validation("name is required"))
		return
	}

	if err := h.Accounts.Register(ctx, id, req.Name); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "Successfully registered user.")
}

// Status handles POST /user/status.
func (h UserHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	if err := h.Accounts.UpdateStatus(ctx, id.UID); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "User status was updated.")
}

// Invitations handles GET /user/invitations.
func (h UserHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	invitations, err := h.Playback.ListInvitations(ctx, id.UID)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}

	resp := invitationsResponse{Invitations: make([]invitationView, 0, len(invitations))}
	for _, inv := range invitations {
		resp.Invitations = append(resp.Invitations, invitationView{ID: inv.ID, From: inv.From, Session: inv.Session})
	}
	respondJSON(ctx, w, http.StatusOK, resp)
}

// Invite handles POST /user/invite.
func (h UserHandler) Invite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	if !allowRequest(h.Limiter, r, "invite") {
		RespondError(ctx, w, apperror.RateLimited())
		return
	}

	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(ctx, w, err)
		return
	}
	req.User = strings.TrimSpace(req.User)
	req.Session = strings.TrimSpace(req.Session)
	if req.User == "" || req.Session == "" {
		RespondError(ctx, w, apperror.Validation("user and session are required"))
		return
	}

	if err := h.Playback.RequireRegisteredUser(ctx, req.User); err != nil {
		RespondError(ctx, w, err)
		return
	}
	assets, err := h.Playback.AuthorizeHost(ctx, id.UID, req.Session)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}

	if _, err := h.Playback.InviteUser(ctx, id.UID, req.User, assets); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "User was invited to session.")
}

// AcceptInvite handles POST /user/invite/accept.
func (h UserHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	invitationID, ok := h.decodeInvitation(w, r)
	if !ok {
		return
	}

	assets, err := h.Playback.AuthorizeInvitation(ctx, id.UID, invitationID, true)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}
	if err := h.Playback.AcceptInvite(ctx, id.UID, assets); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "Invitation was accepted.")
}

// RejectInvite handles POST /user/invite/reject.
func (h UserHandler) RejectInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	invitationID, ok := h.decodeInvitation(w, r)
	if !ok {
		return
	}

	assets, err := h.Playback.AuthorizeInvitation(ctx, id.UID, invitationID, false)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}
	if err := h.Playback.RejectInvite(ctx, assets); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "Invitation was rejected.")
}

func (h UserHandler) decodeInvitation(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req invitationRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(r.Context(), w, err)
		return "", false
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		RespondError(r.Context(), w, apperror.Validation("id is required"))
		return "", false
	}
	return req.ID, true
}

// Delete handles DELETE /user.
func (h UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	if err := h.Accounts.Delete(ctx, id.UID); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "User was successfully deleted.")
}
