package playback

import (
	"context"
	"errors"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/repositories"
)

// SessionAssets holds the session document loaded while authorizing a request.
// It lives for one request only.
type SessionAssets struct {
	Session models.Session
}

// InvitationAssets holds the invitation loaded while authorizing a request and,
// when it was required, the session it refers to.
type InvitationAssets struct {
	Invitation models.Invitation
	Session    *models.Session
}

// AuthorizeHost loads the session and requires uid to be its host.
func (s *Service) AuthorizeHost(ctx context.Context, uid, sessionID string) (SessionAssets, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return SessionAssets{}, err
	}
	if !session.IsHost(uid) {
		return SessionAssets{}, apperror.Forbidden(apperror.CodeNotHost, "Only the session host can perform this action!")
	}
	return SessionAssets{Session: session}, nil
}

// AuthorizeMember loads the session and requires uid to have joined it.
func (s *Service) AuthorizeMember(ctx context.Context, uid, sessionID string) (SessionAssets, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return SessionAssets{}, err
	}
	if !session.IsMember(uid) {
		return SessionAssets{}, apperror.Forbidden(apperror.CodeNotAMember, "User is not a member of this session!")
	}
	return SessionAssets{Session: session}, nil
}

// AuthorizeInvitation loads the invitation and requires it to be addressed to
// uid. With requireSession the referenced session must still exist.
func (s *Service) AuthorizeInvitation(ctx context.Context, uid, invitationID string, requireSession bool) (InvitationAssets, error) {
	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return InvitationAssets{}, apperror.Forbidden(apperror.CodeNotInvited, "User was not invited!")
		}
		return InvitationAssets{}, apperror.Internal("", err)
	}
	if inv.To != uid {
		return InvitationAssets{}, apperror.Forbidden(apperror.CodeNotInvited, "User was not invited!")
	}

	assets := InvitationAssets{Invitation: inv}
	if !requireSession {
		return assets, nil
	}

	session, err := s.sessions.Get(ctx, inv.Session)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return InvitationAssets{}, apperror.Gone(apperror.CodeSessionGone, "Session no longer exists!")
		}
		return InvitationAssets{}, apperror.Internal("", err)
	}
	assets.Session = &session
	return assets, nil
}

// RequireRegisteredUser fails unless uid has a user document.
func (s *Service) RequireRegisteredUser(ctx context.Context, uid string) error {
	exists, err := s.users.Exists(ctx, uid)
	if err != nil {
		return apperror.Internal("", err)
	}
	if !exists {
		return apperror.Business(apperror.CodeUserNotRegistered, "User is not registered!")
	}
	return nil
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (models.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Session{}, apperror.NotFound(apperror.CodeSessionNotFound, "Session does not exist!")
		}
		return models.Session{}, apperror.Internal("", err)
	}
	return session, nil
}
