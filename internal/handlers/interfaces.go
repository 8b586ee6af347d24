package handlers

import (
	"context"

	"github.com/ashplayer/backend/internal/identity"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/playback"
)

// AccountService captures the account lifecycle used by the user handlers.
type AccountService interface {
	Register(ctx context.Context, id identity.Identity, name string) error
	UpdateStatus(ctx context.Context, uid string) error
	Delete(ctx context.Context, uid string) error
}

// ContactService captures contact management.
type ContactService interface {
	Add(ctx context.Context, uid, email string) error
	Remove(ctx context.Context, uid, peer string) error
}

// PlaybackService captures the session lifecycle and its request validators.
type PlaybackService interface {
	AuthorizeHost(ctx context.Context, uid, sessionID string) (playback.SessionAssets, error)
	AuthorizeMember(ctx context.Context, uid, sessionID string) (playback.SessionAssets, error)
	AuthorizeInvitation(ctx context.Context, uid, invitationID string, requireSession bool) (playback.InvitationAssets, error)
	RequireRegisteredUser(ctx context.Context, uid string) error

	CreateSession(ctx context.Context, uid string, targetLength float64) (string, error)
	InviteUser(ctx context.Context, uid, target string, assets playback.SessionAssets) (string, error)
	AcceptInvite(ctx context.Context, uid string, assets playback.InvitationAssets) error
	RejectInvite(ctx context.Context, assets playback.InvitationAssets) error
	ListInvitations(ctx context.Context, uid string) ([]models.Invitation, error)
	UpdateSession(ctx context.Context, uid string, targetLength float64, assets playback.SessionAssets) (models.MemberStatus, error)
	SendSignal(ctx context.Context, signal models.Signal, signalTime *int64, assets playback.SessionAssets) error
}
