package repositories

import (
	"context"
	"fmt"

	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
)

// SessionRepository persists playback session documents.
type SessionRepository struct {
	store docstore.Store
}

// NewSessionRepository constructs a session repository over the document store.
func NewSessionRepository(store docstore.Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// Create stores a new session and returns its store-assigned id.
func (r *SessionRepository) Create(ctx context.Context, session models.Session) (string, error) {
	if session.Members == nil {
		session.Members = map[string]models.Member{}
	}
	id, err := r.store.Add(ctx, models.CollectionSessions, session)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Get loads a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (models.Session, error) {
	var session models.Session
	if err := r.store.Get(ctx, models.CollectionSessions, id, &session); err != nil {
		if err := translate(err); err == ErrNotFound {
			return models.Session{}, err
		}
		return models.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	session.ID = id
	if session.Members == nil {
		session.Members = map[string]models.Member{}
	}
	return session, nil
}

// SetMember writes the member entry for uid. Only that key of the members
// map is touched, so concurrent members never overwrite each other.
func (r *SessionRepository) SetMember(ctx context.Context, id, uid string, member models.Member) error {
	if err := checkKey(uid); err != nil {
		return err
	}
	if err := r.store.Update(ctx, models.CollectionSessions, id, docstore.Set(docstore.Path("members", uid), member)); err != nil {
		if err := translate(err); err == ErrNotFound {
			return err
		}
		return fmt.Errorf("set member %s of session %s: %w", uid, id, err)
	}
	return nil
}

// SignalUpdate describes the fields written when the host broadcasts a signal.
type SignalUpdate struct {
	Signal     models.Signal
	SignalTime *int64
	Started    *bool
}

// SetSignal writes the broadcast signal. A nil SignalTime removes any stale one.
func (r *SessionRepository) SetSignal(ctx context.Context, id string, update SignalUpdate) error {
	updates := []docstore.Update{docstore.Set("signal", update.Signal)}
	if update.SignalTime != nil {
		updates = append(updates, docstore.Set("signalTime", *update.SignalTime))
	} else {
		updates = append(updates, docstore.Remove("signalTime"))
	}
	if update.Started != nil {
		updates = append(updates, docstore.Set("started", *update.Started))
	}

	if err := r.store.Update(ctx, models.CollectionSessions, id, updates...); err != nil {
		if err := translate(err); err == ErrNotFound {
			return err
		}
		return fmt.Errorf("set signal of session %s: %w", id, err)
	}
	return nil
}

// Delete removes the session document. Deleting a missing session succeeds.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, models.CollectionSessions, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ListHostedBy returns the ids of sessions hosted by uid.
func (r *SessionRepository) ListHostedBy(ctx context.Context, uid string) ([]string, error) {
	snaps, err := r.store.Query(ctx, models.CollectionSessions, "host", uid)
	if err != nil {
		return nil, fmt.Errorf("query sessions hosted by %s: %w", uid, err)
	}
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		ids = append(ids, snap.ID)
	}
	return ids, nil
}
