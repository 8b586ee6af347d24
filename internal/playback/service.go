// Package playback owns the session lifecycle: creation, invitations,
// member readiness and host signals.
package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/logging"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/repositories"
)

// SessionStore persists session documents.
type SessionStore interface {
	Create(ctx context.Context, session models.Session) (string, error)
	Get(ctx context.Context, id string) (models.Session, error)
	SetMember(ctx context.Context, id, uid string, member models.Member) error
	SetSignal(ctx context.Context, id string, update repositories.SignalUpdate) error
	Delete(ctx context.Context, id string) error
}

// InvitationStore persists invitations.
type InvitationStore interface {
	Create(ctx context.Context, inv models.Invitation) (string, error)
	Get(ctx context.Context, id string) (models.Invitation, error)
	Delete(ctx context.Context, id string) error
	ListTo(ctx context.Context, uid string) ([]models.Invitation, error)
}

// UserDirectory answers whether a uid is registered.
type UserDirectory interface {
	Exists(ctx context.Context, uid string) (bool, error)
}

// Service implements the session lifecycle.
type Service struct {
	sessions    SessionStore
	invitations InvitationStore
	users       UserDirectory
}

// NewService constructs the session lifecycle manager.
func NewService(sessions SessionStore, invitations InvitationStore, users UserDirectory) *Service {
	return &Service{sessions: sessions, invitations: invitations, users: users}
}

// CreateSession starts an empty session hosted by uid.
func (s *Service) CreateSession(ctx context.Context, uid string, targetLength float64) (string, error) {
	ctx, span := logging.StartSpan(ctx, "playback.create")
	defer span.End()

	if targetLength <= 0 {
		return "", apperror.Validation("targetLength must be a positive number")
	}

	id, err := s.sessions.Create(ctx, models.Session{
		Host:         uid,
		TargetLength: targetLength,
		Members:      map[string]models.Member{},
	})
	if err != nil {
		return "", span.Fail(apperror.Internal("Could not create session!", err))
	}

	logging.FromContext(ctx).Info("session created", slog.String("session_id", id), slog.String("host", uid))
	return id, nil
}

// InviteUser records an invitation from the host to target. The caller must
// have been authorized with AuthorizeHost and target checked with
// RequireRegisteredUser. Duplicate invitations are allowed.
func (s *Service) InviteUser(ctx context.Context, uid, target string, assets SessionAssets) (string, error) {
	ctx, span := logging.StartSpan(ctx, "playback.invite")
	defer span.End()

	id, err := s.invitations.Create(ctx, models.Invitation{
		From:    uid,
		To:      target,
		Session: assets.Session.ID,
	})
	if err != nil {
		return "", span.Fail(apperror.Internal("Could not invite user!", err))
	}

	logging.FromContext(ctx).Info("invitation created",
		slog.String("invitation_id", id),
		slog.String("session_id", assets.Session.ID),
		slog.String("to", target),
	)
	return id, nil
}

// AcceptInvite consumes the invitation and joins uid to the session as not
// ready. The two writes are not atomic.
func (s *Service) AcceptInvite(ctx context.Context, uid string, assets InvitationAssets) error {
	ctx, span := logging.StartSpan(ctx, "playback.accept")
	defer span.End()

	inv := assets.Invitation
	if err := s.invitations.Delete(ctx, inv.ID); err != nil {
		return span.Fail(apperror.Internal("Could not accept invitation!", err))
	}

	if err := s.sessions.SetMember(ctx, inv.Session, uid, models.Member{Status: models.MemberNotReady}); err != nil {
		return span.Fail(apperror.Internal("Could not join session!", err))
	}

	logging.FromContext(ctx).Info("invitation accepted",
		slog.String("invitation_id", inv.ID),
		slog.String("session_id", inv.Session),
	)
	return nil
}

// ListInvitations returns the invitations addressed to uid that are still pending.
func (s *Service) ListInvitations(ctx context.Context, uid string) ([]models.Invitation, error) {
	ctx, span := logging.StartSpan(ctx, "playback.list_invitations")
	defer span.End()

	invitations, err := s.invitations.ListTo(ctx, uid)
	if err != nil {
		return nil, span.Fail(apperror.Internal("Could not list invitations!", err))
	}
	return invitations, nil
}

// RejectInvite consumes the invitation without joining.
func (s *Service) RejectInvite(ctx context.Context, assets InvitationAssets) error {
	ctx, span := logging.StartSpan(ctx, "playback.reject")
	defer span.End()

	if err := s.invitations.Delete(ctx, assets.Invitation.ID); err != nil {
		return span.Fail(apperror.Internal("Could not reject invitation!", err))
	}
	return nil
}

// UpdateSession records the member's local media length and returns the
// readiness computed against the session's target length.
func (s *Service) UpdateSession(ctx context.Context, uid string, targetLength float64, assets SessionAssets) (models.MemberStatus, error) {
	ctx, span := logging.StartSpan(ctx, "playback.update")
	defer span.End()

	if targetLength <= 0 {
		return "", apperror.Validation("targetLength must be a positive number")
	}

	status := models.MemberMismatch
	if assets.Session.TargetLength == targetLength {
		status = models.MemberReady
	}

	length := targetLength
	err := s.sessions.SetMember(ctx, assets.Session.ID, uid, models.Member{TargetLength: &length, Status: status})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", apperror.NotFound(apperror.CodeSessionNotFound, "Session does not exist!")
		}
		return "", span.Fail(apperror.Internal("Could not update session!", err))
	}

	logging.FromContext(ctx).Info("member status updated",
		slog.String("session_id", assets.Session.ID),
		slog.String("status", string(status)),
	)
	return status, nil
}

// SendSignal writes the host's signal onto the session. Every signal except
// end requires all members to be ready. End deletes the session afterwards.
func (s *Service) SendSignal(ctx context.Context, signal models.Signal, signalTime *int64, assets SessionAssets) error {
	ctx, span := logging.StartSpan(ctx, "playback.signal")
	defer span.End()

	session := assets.Session
	logger := logging.FromContext(ctx).With(slog.String("session_id", session.ID), slog.String("signal", string(signal)))

	if signal != models.SignalEnd {
		if pending := session.PendingMembers(); len(pending) > 0 {
			logger.Warn("signal rejected, members not ready", slog.Int("pending", len(pending)))
			return apperror.Conflict(apperror.CodeMembersNotReady, "Not all members are ready!")
		}
	}

	update := repositories.SignalUpdate{Signal: signal, SignalTime: signalTime}
	switch signal {
	case models.SignalStart:
		started := true
		update.Started = &started
	case models.SignalStop:
		started := false
		update.Started = &started
	}

	if err := s.sessions.SetSignal(ctx, session.ID, update); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound) && signal == models.SignalEnd:
			// Already torn down.
		case errors.Is(err, repositories.ErrNotFound):
			return apperror.NotFound(apperror.CodeSessionNotFound, "Session does not exist!")
		default:
			return span.Fail(apperror.Internal("Could not send signal!", err))
		}
	}

	if signal == models.SignalEnd {
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			return span.Fail(apperror.Internal("Could not end session!", err))
		}
		logger.Info("session ended")
		return nil
	}

	logger.Info("signal sent")
	return nil
}
