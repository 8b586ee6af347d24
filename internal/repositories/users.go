package repositories

import (
	"context"
	"fmt"

	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
)

// UserRepository persists user profiles keyed by identity subject.
type UserRepository struct {
	store docstore.Store
}

// NewUserRepository constructs a user repository over the document store.
func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

// Create persists a new user. Registering the same uid twice yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	if err := r.store.Create(ctx, models.CollectionUsers, user.UID, user); err != nil {
		if err := translate(err); err == ErrConflict {
			return err
		}
		return fmt.Errorf("create user %s: %w", user.UID, err)
	}
	return nil
}

// Get loads a user by uid.
func (r *UserRepository) Get(ctx context.Context, uid string) (models.User, error) {
	var user models.User
	if err := r.store.Get(ctx, models.CollectionUsers, uid, &user); err != nil {
		if err := translate(err); err == ErrNotFound {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("get user %s: %w", uid, err)
	}
	user.UID = uid
	return user, nil
}

// Exists reports whether a user document exists for uid.
func (r *UserRepository) Exists(ctx context.Context, uid string) (bool, error) {
	if _, err := r.Get(ctx, uid); err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FindByEmail returns the first user registered with email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	snaps, err := r.store.Query(ctx, models.CollectionUsers, "email", email)
	if err != nil {
		return models.User{}, fmt.Errorf("query users by email: %w", err)
	}
	if len(snaps) == 0 {
		return models.User{}, ErrNotFound
	}

	var user models.User
	if err := snaps[0].Decode(&user); err != nil {
		return models.User{}, fmt.Errorf("decode user %s: %w", snaps[0].ID, err)
	}
	user.UID = snaps[0].ID
	return user, nil
}

// TouchLastOnline records the time the user was last seen, in epoch milliseconds.
func (r *UserRepository) TouchLastOnline(ctx context.Context, uid string, at int64) error {
	if err := r.store.Update(ctx, models.CollectionUsers, uid, docstore.Set("lastTimeOnline", at)); err != nil {
		if err := translate(err); err == ErrNotFound {
			return err
		}
		return fmt.Errorf("update user %s status: %w", uid, err)
	}
	return nil
}

// Delete removes the user document. Deleting a missing user succeeds.
func (r *UserRepository) Delete(ctx context.Context, uid string) error {
	if err := r.store.Delete(ctx, models.CollectionUsers, uid); err != nil {
		return fmt.Errorf("delete user %s: %w", uid, err)
	}
	return nil
}
