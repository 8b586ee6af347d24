package handlers

import (
	"net/http"
	"strings"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/models"
)

// SessionHandler implements the /session endpoints.
type SessionHandler struct {
	Playback PlaybackService
}

type createSessionRequest struct {
	TargetLength *float64 `json:"targetLength"`
}

type updateSessionRequest struct {
	TargetLength *float64 `json:"targetLength"`
	Session      string   `json:"session"`
}

type signalRequest struct {
	Signal     string `json:"signal"`
	SignalTime *int64 `json:"signalTime,omitempty"`
	Session    string `json:"session"`
}

type sessionIDResponse struct {
	ID string `json:"id"`
}

type memberStatusResponse struct {
	Status models.MemberStatus `json:"status"`
}

// Create handles POST /session/create.
func (h SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(ctx, w, err)
		return
	}
	if req.TargetLength == nil || *req.TargetLength <= 0 {
		RespondError(ctx, w, apperror.Validation("targetLength must be a positive number"))
		return
	}

	sessionID, err := h.Playback.CreateSession(ctx, id.UID, *req.TargetLength)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, sessionIDResponse{ID: sessionID})
}

// Update handles POST /session/update.
func (h SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(ctx, w, err)
		return
	}
	req.Session = strings.TrimSpace(req.Session)
	if req.TargetLength == nil || *req.TargetLength <= 0 || req.Session == "" {
		RespondError(ctx, w, apperror.Validation("targetLength must be a positive number and session is required"))
		return
	}

	assets, err := h.Playback.AuthorizeMember(ctx, id.UID, req.Session)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}

	status, err := h.Playback.UpdateSession(ctx, id.UID, *req.TargetLength, assets)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, memberStatusResponse{Status: status})
}

// Signal handles POST /session/signal.
func (h SessionHandler) Signal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(ctx, w)
	if !ok {
		return
	}

	var req signalRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(ctx, w, err)
		return
	}
	req.Session = strings.TrimSpace(req.Session)
	if req.Session == "" {
		RespondError(ctx, w, apperror.Validation("session is required"))
		return
	}
	signal, err := models.ParseSignal(req.Signal)
	if err != nil {
		RespondError(ctx, w, apperror.Validation("signal must be start, pause, resume, stop, end or time:<seconds>"))
		return
	}
	if req.SignalTime != nil && *req.SignalTime < 0 {
		RespondError(ctx, w, apperror.Validation("signalTime must not be negative"))
		return
	}

	assets, err := h.Playback.AuthorizeHost(ctx, id.UID, req.Session)
	if err != nil {
		RespondError(ctx, w, err)
		return
	}

	if err := h.Playback.SendSignal(ctx, signal, req.SignalTime, assets); err != nil {
		RespondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, "Signal was sent to all members in the session.")
}
