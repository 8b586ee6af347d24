package repositories

import (
	"context"
	"fmt"

	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
)

// InvitationRepository persists pending session invitations.
type InvitationRepository struct {
	store docstore.Store
}

// NewInvitationRepository constructs an invitation repository over the document store.
func NewInvitationRepository(store docstore.Store) *InvitationRepository {
	return &InvitationRepository{store: store}
}

// Create stores the invitation and returns its store-assigned id.
func (r *InvitationRepository) Create(ctx context.Context, inv models.Invitation) (string, error) {
	id, err := r.store.Add(ctx, models.CollectionInvitations, inv)
	if err != nil {
		return "", fmt.Errorf("create invitation: %w", err)
	}
	return id, nil
}

// Get loads an invitation by id.
func (r *InvitationRepository) Get(ctx context.Context, id string) (models.Invitation, error) {
	var inv models.Invitation
	if err := r.store.Get(ctx, models.CollectionInvitations, id, &inv); err != nil {
		if err := translate(err); err == ErrNotFound {
			return models.Invitation{}, err
		}
		return models.Invitation{}, fmt.Errorf("get invitation %s: %w", id, err)
	}
	inv.ID = id
	return inv, nil
}

// Delete consumes the invitation.
func (r *InvitationRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, models.CollectionInvitations, id); err != nil {
		return fmt.Errorf("delete invitation %s: %w", id, err)
	}
	return nil
}

// ListFrom returns invitations sent by uid.
func (r *InvitationRepository) ListFrom(ctx context.Context, uid string) ([]models.Invitation, error) {
	return r.list(ctx, "from", uid)
}

// ListTo returns invitations addressed to uid.
func (r *InvitationRepository) ListTo(ctx context.Context, uid string) ([]models.Invitation, error) {
	return r.list(ctx, "to", uid)
}

func (r *InvitationRepository) list(ctx context.Context, field, uid string) ([]models.Invitation, error) {
	snaps, err := r.store.Query(ctx, models.CollectionInvitations, field, uid)
	if err != nil {
		return nil, fmt.Errorf("query invitations by %s: %w", field, err)
	}

	invitations := make([]models.Invitation, 0, len(snaps))
	for _, snap := range snaps {
		var inv models.Invitation
		if err := snap.Decode(&inv); err != nil {
			return nil, fmt.Errorf("decode invitation %s: %w", snap.ID, err)
		}
		inv.ID = snap.ID
		invitations = append(invitations, inv)
	}
	return invitations, nil
}
