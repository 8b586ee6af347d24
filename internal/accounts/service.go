// Package accounts handles registration, presence and the account deletion
// cascade.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/identity"
	"github.com/ashplayer/backend/internal/logging"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/repositories"
)

// Cascade steps in execution order.
const (
	StepInvitations = "invitations"
	StepSessions    = "sessions"
	StepContacts    = "contacts"
	StepUser        = "user"
	StepIdentity    = "identity"
)

var cascadeSteps = []string{StepInvitations, StepSessions, StepContacts, StepUser, StepIdentity}

// UserStore persists user profiles.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	TouchLastOnline(ctx context.Context, uid string, at int64) error
	Delete(ctx context.Context, uid string) error
}

// ContactStore removes a user's contacts document.
type ContactStore interface {
	Delete(ctx context.Context, owner string) error
}

// InvitationStore lists and removes invitations.
type InvitationStore interface {
	ListFrom(ctx context.Context, uid string) ([]models.Invitation, error)
	Delete(ctx context.Context, id string) error
}

// SessionStore lists and removes sessions.
type SessionStore interface {
	ListHostedBy(ctx context.Context, uid string) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// DeletionStore tracks cascade progress.
type DeletionStore interface {
	Begin(ctx context.Context, uid string, at int64) error
	Get(ctx context.Context, uid string) (models.Deletion, error)
	MarkStep(ctx context.Context, uid, step string, at int64) error
	Finish(ctx context.Context, uid string) error
	ListPending(ctx context.Context) ([]string, error)
}

// IdentityDeleter removes the caller's identity from the identity provider.
type IdentityDeleter interface {
	Delete(ctx context.Context, uid string) error
}

// Scheduler accepts failed cascades for background retry.
type Scheduler interface {
	Enqueue(ctx context.Context, uid string) error
}

// Dependencies aggregates the stores used by Service.
type Dependencies struct {
	Users       UserStore
	Contacts    ContactStore
	Invitations InvitationStore
	Sessions    SessionStore
	Deletions   DeletionStore
	Identities  IdentityDeleter
	Now         func() time.Time
}

// Service implements the account lifecycle.
type Service struct {
	deps      Dependencies
	scheduler Scheduler
}

// NewService constructs the account service.
func NewService(deps Dependencies) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// UseScheduler hands failed cascades to s for retry.
func (s *Service) UseScheduler(scheduler Scheduler) {
	s.scheduler = scheduler
}

// Register creates the user document for the verified identity. It fails
// when the identity already registered.
func (s *Service) Register(ctx context.Context, id identity.Identity, name string) error {
	ctx, span := logging.StartSpan(ctx, "accounts.register")
	defer span.End()

	user := models.User{
		UID:            id.UID,
		Name:           name,
		Email:          id.Email,
		LastTimeOnline: s.deps.Now().UnixMilli(),
	}
	if err := s.deps.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return apperror.Conflict(apperror.CodeAlreadyRegistered, "User is already registered!")
		}
		return span.Fail(apperror.Internal("Could not register user!", err))
	}

	logging.FromContext(ctx).Info("user registered", slog.String("uid", id.UID))
	return nil
}

// UpdateStatus records that uid is online now.
func (s *Service) UpdateStatus(ctx context.Context, uid string) error {
	if err := s.deps.Users.TouchLastOnline(ctx, uid, s.deps.Now().UnixMilli()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperror.Forbidden(apperror.CodeNotRegistered, "User is not registered!")
		}
		return apperror.Internal("Could not update user status!", err)
	}
	return nil
}

// Delete removes the account and everything it owns. A failed cascade is
// reported to the caller and handed to the scheduler to finish later.
func (s *Service) Delete(ctx context.Context, uid string) error {
	ctx, span := logging.StartSpan(ctx, "accounts.delete")
	defer span.End()

	err := s.Cascade(ctx, uid)
	if err == nil {
		return nil
	}

	logger := logging.FromContext(ctx)
	logger.Error("account deletion incomplete", slog.String("uid", uid), slog.Any("error", err))
	if s.scheduler != nil {
		if schedErr := s.scheduler.Enqueue(context.WithoutCancel(ctx), uid); schedErr != nil {
			logger.Error("schedule deletion retry", slog.String("uid", uid), slog.Any("error", schedErr))
		}
	}
	return span.Fail(apperror.Internal("", err))
}

// Cascade runs every incomplete deletion step for uid. Each step is
// idempotent, so an interrupted cascade can be resumed.
func (s *Service) Cascade(ctx context.Context, uid string) error {
	if err := s.deps.Deletions.Begin(ctx, uid, s.deps.Now().UnixMilli()); err != nil {
		return err
	}
	progress, err := s.deps.Deletions.Get(ctx, uid)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx)
	for _, step := range cascadeSteps {
		if progress.Steps[step] {
			continue
		}
		if err := s.runStep(ctx, uid, step); err != nil {
			return fmt.Errorf("deletion step %s: %w", step, err)
		}
		if err := s.deps.Deletions.MarkStep(ctx, uid, step, s.deps.Now().UnixMilli()); err != nil {
			return err
		}
		logger.Debug("deletion step complete", slog.String("uid", uid), slog.String("step", step))
	}

	if err := s.deps.Deletions.Finish(ctx, uid); err != nil {
		return err
	}
	logger.Info("account deleted", slog.String("uid", uid))
	return nil
}

func (s *Service) runStep(ctx context.Context, uid, step string) error {
	switch step {
	case StepInvitations:
		invitations, err := s.deps.Invitations.ListFrom(ctx, uid)
		if err != nil {
			return err
		}
		for _, inv := range invitations {
			if err := s.deps.Invitations.Delete(ctx, inv.ID); err != nil {
				return err
			}
		}
	case StepSessions:
		ids, err := s.deps.Sessions.ListHostedBy(ctx, uid)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.deps.Sessions.Delete(ctx, id); err != nil {
				return err
			}
		}
	case StepContacts:
		return s.deps.Contacts.Delete(ctx, uid)
	case StepUser:
		return s.deps.Users.Delete(ctx, uid)
	case StepIdentity:
		if s.deps.Identities == nil {
			return nil
		}
		return s.deps.Identities.Delete(ctx, uid)
	default:
		return fmt.Errorf("unknown deletion step %q", step)
	}
	return nil
}

// PendingDeletions lists uids whose cascade has not finished.
func (s *Service) PendingDeletions(ctx context.Context) ([]string, error) {
	return s.deps.Deletions.ListPending(ctx)
}
