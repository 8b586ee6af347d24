package contacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/repositories"
)

func TestAddAndRemoveContact(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	users := repositories.NewUserRepository(store)
	contacts := repositories.NewContactRepository(store)
	svc := NewService(users, contacts)

	require.NoError(t, users.Create(ctx, models.User{UID: "u1", Email: "one@email.com"}))
	require.NoError(t, users.Create(ctx, models.User{UID: "u2", Email: "two@email.com"}))

	require.NoError(t, svc.Add(ctx, "u1", " two@email.com "))

	list, err := contacts.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Contacts{"u2": true}, list)

	err = svc.Add(ctx, "u1", "nobody@email.com")
	assert.True(t, apperror.HasCode(err, apperror.CodeEmailNotRegistered))

	require.NoError(t, svc.Remove(ctx, "u1", "u2"))
	require.NoError(t, svc.Remove(ctx, "u1", "never-added"))

	list, err = contacts.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRemoveRejectsDottedUIDs(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	users := repositories.NewUserRepository(store)
	contacts := repositories.NewContactRepository(store)
	svc := NewService(users, contacts)

	require.NoError(t, users.Create(ctx, models.User{UID: "u2", Email: "two@email.com"}))
	require.NoError(t, svc.Add(ctx, "u1", "two@email.com"))

	for _, peer := range []string{"u2.x", "a..b", "."} {
		err := svc.Remove(ctx, "u1", peer)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidationFailed), "peer %q: %v", peer, err)
	}

	list, err := contacts.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Contacts{"u2": true}, list)
}

func TestRemoveWithoutContactsDocument(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	svc := NewService(repositories.NewUserRepository(store), repositories.NewContactRepository(store))

	require.NoError(t, svc.Remove(ctx, "fresh", "nobody"))
	assert.False(t, store.Has(models.CollectionContacts, "fresh"))
}
