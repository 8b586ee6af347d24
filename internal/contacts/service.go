// Package contacts manages a user's contact list.
package contacts

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/logging"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/repositories"
)

// UserFinder resolves users by email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// ContactStore persists contact flags.
type ContactStore interface {
	Add(ctx context.Context, owner, peer string) error
	Remove(ctx context.Context, owner, peer string) error
}

// Service implements contact management.
type Service struct {
	users    UserFinder
	contacts ContactStore
}

// NewService constructs the contacts service.
func NewService(users UserFinder, contacts ContactStore) *Service {
	return &Service{users: users, contacts: contacts}
}

// Add looks up the user registered with email and flags them as a contact of uid.
func (s *Service) Add(ctx context.Context, uid, email string) error {
	email = strings.TrimSpace(email)

	peer, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperror.Business(apperror.CodeEmailNotRegistered, "Email is not registered!")
		}
		return apperror.Internal("Could not add contact!", err)
	}

	if err := s.contacts.Add(ctx, uid, peer.UID); err != nil {
		if errors.Is(err, repositories.ErrInvalidKey) {
			return apperror.Validation("contact uid must not contain '.'")
		}
		return apperror.Internal("Could not add contact!", err)
	}

	logging.FromContext(ctx).Info("contact added", slog.String("uid", uid), slog.String("contact", peer.UID))
	return nil
}

// Remove deletes peer from uid's contacts. Removing an unknown contact succeeds.
func (s *Service) Remove(ctx context.Context, uid, peer string) error {
	if err := s.contacts.Remove(ctx, uid, peer); err != nil {
		if errors.Is(err, repositories.ErrInvalidKey) {
			return apperror.Validation("uid must not contain '.'")
		}
		return apperror.Internal("Could not delete contact!", err)
	}
	return nil
}
