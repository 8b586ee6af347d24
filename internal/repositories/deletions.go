package repositories

import (
	"context"
	"fmt"

	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
)

// DeletionRepository tracks progress of account deletion cascades.
type DeletionRepository struct {
	store docstore.Store
}

// NewDeletionRepository constructs a deletion repository over the document store.
func NewDeletionRepository(store docstore.Store) *DeletionRepository {
	return &DeletionRepository{store: store}
}

// Get loads the cascade record for uid. A missing record yields an empty pending one.
func (r *DeletionRepository) Get(ctx context.Context, uid string) (models.Deletion, error) {
	var deletion models.Deletion
	if err := r.store.Get(ctx, models.CollectionDeletions, uid, &deletion); err != nil {
		if translate(err) != ErrNotFound {
			return models.Deletion{}, fmt.Errorf("get deletion %s: %w", uid, err)
		}
		deletion = models.Deletion{State: models.DeletionPending}
	}
	if deletion.Steps == nil {
		deletion.Steps = map[string]bool{}
	}
	deletion.UID = uid
	return deletion, nil
}

// MarkStep records a completed step. Begin must have run first.
func (r *DeletionRepository) MarkStep(ctx context.Context, uid, step string, at int64) error {
	if err := r.store.Update(ctx, models.CollectionDeletions, uid,
		docstore.Set(docstore.Path("steps", step), true),
		docstore.Set("updatedAt", at),
	); err != nil {
		return fmt.Errorf("mark deletion step %s for %s: %w", step, uid, err)
	}
	return nil
}

// Begin ensures a pending record exists for uid.
func (r *DeletionRepository) Begin(ctx context.Context, uid string, at int64) error {
	err := r.store.Create(ctx, models.CollectionDeletions, uid, models.Deletion{
		State:     models.DeletionPending,
		Steps:     map[string]bool{},
		UpdatedAt: at,
	})
	if err != nil && translate(err) != ErrConflict {
		return fmt.Errorf("begin deletion for %s: %w", uid, err)
	}
	return nil
}

// Finish removes the cascade record once every step completed.
func (r *DeletionRepository) Finish(ctx context.Context, uid string) error {
	if err := r.store.Delete(ctx, models.CollectionDeletions, uid); err != nil {
		return fmt.Errorf("finish deletion for %s: %w", uid, err)
	}
	return nil
}

// ListPending returns uids whose cascade has not completed.
func (r *DeletionRepository) ListPending(ctx context.Context) ([]string, error) {
	snaps, err := r.store.Query(ctx, models.CollectionDeletions, "state", models.DeletionPending)
	if err != nil {
		return nil, fmt.Errorf("query pending deletions: %w", err)
	}
	uids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		uids = append(uids, snap.ID)
	}
	return uids, nil
}
