package repositories

import (
	"context"
	"fmt"

	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
)

// ContactRepository persists one contacts document per user.
type ContactRepository struct {
	store docstore.Store
}

// NewContactRepository constructs a contact repository over the document store.
func NewContactRepository(store docstore.Store) *ContactRepository {
	return &ContactRepository{store: store}
}

// Add flags peer as a contact of owner, creating the document on first use.
func (r *ContactRepository) Add(ctx context.Context, owner, peer string) error {
	if err := checkKey(peer); err != nil {
		return err
	}
	if err := r.store.Upsert(ctx, models.CollectionContacts, owner, docstore.Set(peer, true)); err != nil {
		return fmt.Errorf("add contact %s for %s: %w", peer, owner, err)
	}
	return nil
}

// Remove deletes the peer field from owner's contacts. An owner without a
// contacts document is left without one.
func (r *ContactRepository) Remove(ctx context.Context, owner, peer string) error {
	if err := checkKey(peer); err != nil {
		return err
	}
	if err := r.store.Update(ctx, models.CollectionContacts, owner, docstore.Remove(peer)); err != nil {
		if translate(err) == ErrNotFound {
			return nil
		}
		return fmt.Errorf("remove contact %s for %s: %w", peer, owner, err)
	}
	return nil
}

// List returns the contacts of owner. A user without a document has none.
func (r *ContactRepository) List(ctx context.Context, owner string) (models.Contacts, error) {
	contacts := models.Contacts{}
	if err := r.store.Get(ctx, models.CollectionContacts, owner, &contacts); err != nil {
		if translate(err) == ErrNotFound {
			return models.Contacts{}, nil
		}
		return nil, fmt.Errorf("get contacts for %s: %w", owner, err)
	}
	return contacts, nil
}

// Delete removes the whole contacts document of owner.
func (r *ContactRepository) Delete(ctx context.Context, owner string) error {
	if err := r.store.Delete(ctx, models.CollectionContacts, owner); err != nil {
		return fmt.Errorf("delete contacts for %s: %w", owner, err)
	}
	return nil
}
