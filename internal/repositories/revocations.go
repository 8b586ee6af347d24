package repositories

import (
	"context"
	"fmt"

	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
)

// RevocationRepository persists identity revocations.
type RevocationRepository struct {
	store docstore.Store
}

// NewRevocationRepository constructs a revocation repository over the document store.
func NewRevocationRepository(store docstore.Store) *RevocationRepository {
	return &RevocationRepository{store: store}
}

// Revoke records that tokens for uid issued at or before revokedAt (unix seconds) are invalid.
func (r *RevocationRepository) Revoke(ctx context.Context, uid string, revokedAt int64) error {
	if err := r.store.Upsert(ctx, models.CollectionRevocations, uid, docstore.Set("revokedAt", revokedAt)); err != nil {
		return fmt.Errorf("revoke %s: %w", uid, err)
	}
	return nil
}

// RevokedAt returns the revocation time for uid and whether one exists.
func (r *RevocationRepository) RevokedAt(ctx context.Context, uid string) (int64, bool, error) {
	var rev models.Revocation
	if err := r.store.Get(ctx, models.CollectionRevocations, uid, &rev); err != nil {
		if translate(err) == ErrNotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get revocation %s: %w", uid, err)
	}
	return rev.RevokedAt, true, nil
}
