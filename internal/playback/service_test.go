package playback

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/repositories"
)

type fixture struct {
	svc         *Service
	store       *docstore.Memory
	sessions    *repositories.SessionRepository
	invitations *repositories.InvitationRepository
	users       *repositories.UserRepository
}

func newFixture(t *testing.T, uids ...string) fixture {
	t.Helper()
	store := docstore.NewMemory()
	f := fixture{
		store:       store,
		sessions:    repositories.NewSessionRepository(store),
		invitations: repositories.NewInvitationRepository(store),
		users:       repositories.NewUserRepository(store),
	}
	f.svc = NewService(f.sessions, f.invitations, f.users)
	for _, uid := range uids {
		require.NoError(t, f.users.Create(context.Background(), models.User{UID: uid, Name: uid, Email: uid + "@email.com"}))
	}
	return f
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.Status)
	assert.Equal(t, code, appErr.Code)
}

// join runs the invite and accept flow for member.
func (f fixture) join(t *testing.T, host, member, sessionID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.svc.RequireRegisteredUser(ctx, member))
	hostAssets, err := f.svc.AuthorizeHost(ctx, host, sessionID)
	require.NoError(t, err)
	invID, err := f.svc.InviteUser(ctx, host, member, hostAssets)
	require.NoError(t, err)

	invAssets, err := f.svc.AuthorizeInvitation(ctx, member, invID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.AcceptInvite(ctx, member, invAssets))
}

func (f fixture) report(t *testing.T, member, sessionID string, length float64) models.MemberStatus {
	t.Helper()
	ctx := context.Background()
	assets, err := f.svc.AuthorizeMember(ctx, member, sessionID)
	require.NoError(t, err)
	status, err := f.svc.UpdateSession(ctx, member, length, assets)
	require.NoError(t, err)
	return status
}

func (f fixture) signal(t *testing.T, host, sessionID string, signal models.Signal) error {
	t.Helper()
	ctx := context.Background()
	assets, err := f.svc.AuthorizeHost(ctx, host, sessionID)
	if err != nil {
		return err
	}
	return f.svc.SendSignal(ctx, signal, nil, assets)
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t, "host")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)

	session, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "host", session.Host)
	assert.False(t, session.Started)
	assert.Equal(t, 100.0, session.TargetLength)
	assert.Empty(t, session.Members)

	_, err = f.svc.CreateSession(ctx, "host", 0)
	requireCode(t, err, http.StatusBadRequest, apperror.CodeValidationFailed)
}

func TestPlaybackScenario(t *testing.T) {
	f := newFixture(t, "host", "m1", "m2", "m3")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)

	f.join(t, "host", "m1", id)
	f.join(t, "host", "m2", id)

	session, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MemberNotReady, session.Members["m1"].Status)

	assert.Equal(t, models.MemberReady, f.report(t, "m1", id, 100))
	assert.Equal(t, models.MemberReady, f.report(t, "m2", id, 100))

	require.NoError(t, f.signal(t, "host", id, models.SignalStart))
	session, err = f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStart, session.Signal)
	assert.True(t, session.Started)

	f.join(t, "host", "m3", id)
	assert.Equal(t, models.MemberMismatch, f.report(t, "m3", id, 90))

	err = f.signal(t, "host", id, models.SignalPause)
	requireCode(t, err, http.StatusConflict, apperror.CodeMembersNotReady)

	session, err = f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStart, session.Signal, "rejected signal must leave the field unchanged")

	require.NoError(t, f.signal(t, "host", id, models.SignalEnd))
	assert.False(t, f.store.Has(models.CollectionSessions, id))

	err = f.signal(t, "host", id, models.SignalPause)
	requireCode(t, err, http.StatusNotFound, apperror.CodeSessionNotFound)
	_, err = f.svc.AuthorizeMember(ctx, "m1", id)
	requireCode(t, err, http.StatusNotFound, apperror.CodeSessionNotFound)
}

func TestSendSignalWithNotReadyMember(t *testing.T) {
	f := newFixture(t, "host", "m1")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	f.join(t, "host", "m1", id)

	err = f.signal(t, "host", id, models.SignalResume)
	requireCode(t, err, http.StatusConflict, apperror.CodeMembersNotReady)
}

func TestSendSignalEmptySessionAndSeek(t *testing.T) {
	f := newFixture(t, "host")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)

	seek, err := models.ParseSignal("time:210")
	require.NoError(t, err)

	assets, err := f.svc.AuthorizeHost(ctx, "host", id)
	require.NoError(t, err)
	at := int64(1_700_000_000_000)
	require.NoError(t, f.svc.SendSignal(ctx, seek, &at, assets))

	session, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Signal("time:210"), session.Signal)
	require.NotNil(t, session.SignalTime)
	assert.Equal(t, at, *session.SignalTime)

	require.NoError(t, f.signal(t, "host", id, models.SignalStop))
	session, err = f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, session.SignalTime)
	assert.False(t, session.Started)
}

func TestEndIsIdempotent(t *testing.T) {
	f := newFixture(t, "host")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	assets, err := f.svc.AuthorizeHost(ctx, "host", id)
	require.NoError(t, err)

	require.NoError(t, f.svc.SendSignal(ctx, models.SignalEnd, nil, assets))
	require.NoError(t, f.svc.SendSignal(ctx, models.SignalEnd, nil, assets))
	assert.False(t, f.store.Has(models.CollectionSessions, id))
}

func TestAuthorizationFailures(t *testing.T) {
	f := newFixture(t, "host", "m1", "outsider")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	f.join(t, "host", "m1", id)

	_, err = f.svc.AuthorizeHost(ctx, "m1", id)
	requireCode(t, err, http.StatusForbidden, apperror.CodeNotHost)

	_, err = f.svc.AuthorizeHost(ctx, "host", "missing")
	requireCode(t, err, http.StatusNotFound, apperror.CodeSessionNotFound)

	_, err = f.svc.AuthorizeMember(ctx, "outsider", id)
	requireCode(t, err, http.StatusForbidden, apperror.CodeNotAMember)

	_, err = f.svc.AuthorizeMember(ctx, "host", id)
	requireCode(t, err, http.StatusForbidden, apperror.CodeNotAMember)

	err = f.svc.RequireRegisteredUser(ctx, "ghost")
	requireCode(t, err, http.StatusBadRequest, apperror.CodeUserNotRegistered)
}

func TestInvitationSingleUse(t *testing.T) {
	f := newFixture(t, "host", "m1", "m2")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	hostAssets, err := f.svc.AuthorizeHost(ctx, "host", id)
	require.NoError(t, err)
	invID, err := f.svc.InviteUser(ctx, "host", "m1", hostAssets)
	require.NoError(t, err)

	_, err = f.svc.AuthorizeInvitation(ctx, "m2", invID, true)
	requireCode(t, err, http.StatusForbidden, apperror.CodeNotInvited)

	assets, err := f.svc.AuthorizeInvitation(ctx, "m1", invID, true)
	require.NoError(t, err)
	require.NotNil(t, assets.Session)
	require.NoError(t, f.svc.AcceptInvite(ctx, "m1", assets))

	_, err = f.svc.AuthorizeInvitation(ctx, "m1", invID, true)
	requireCode(t, err, http.StatusForbidden, apperror.CodeNotInvited)
}

func TestRejectDoesNotRequireSession(t *testing.T) {
	f := newFixture(t, "host", "m1")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	hostAssets, err := f.svc.AuthorizeHost(ctx, "host", id)
	require.NoError(t, err)
	invID, err := f.svc.InviteUser(ctx, "host", "m1", hostAssets)
	require.NoError(t, err)

	require.NoError(t, f.signal(t, "host", id, models.SignalEnd))

	_, err = f.svc.AuthorizeInvitation(ctx, "m1", invID, true)
	requireCode(t, err, http.StatusGone, apperror.CodeSessionGone)

	assets, err := f.svc.AuthorizeInvitation(ctx, "m1", invID, false)
	require.NoError(t, err)
	assert.Nil(t, assets.Session)
	require.NoError(t, f.svc.RejectInvite(ctx, assets))
	assert.False(t, f.store.Has(models.CollectionInvitations, invID))
}

func TestAcceptAfterSessionDeletedSurfacesInternalError(t *testing.T) {
	f := newFixture(t, "host", "m1")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	hostAssets, err := f.svc.AuthorizeHost(ctx, "host", id)
	require.NoError(t, err)
	invID, err := f.svc.InviteUser(ctx, "host", "m1", hostAssets)
	require.NoError(t, err)

	assets, err := f.svc.AuthorizeInvitation(ctx, "m1", invID, true)
	require.NoError(t, err)

	require.NoError(t, f.sessions.Delete(ctx, id))

	err = f.svc.AcceptInvite(ctx, "m1", assets)
	requireCode(t, err, http.StatusInternalServerError, apperror.CodeInternal)
	assert.True(t, errors.Is(err, repositories.ErrNotFound))
	assert.False(t, f.store.Has(models.CollectionInvitations, invID))
}

func TestDuplicateInvitationsArePreserved(t *testing.T) {
	f := newFixture(t, "host", "m1")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	hostAssets, err := f.svc.AuthorizeHost(ctx, "host", id)
	require.NoError(t, err)

	first, err := f.svc.InviteUser(ctx, "host", "m1", hostAssets)
	require.NoError(t, err)
	second, err := f.svc.InviteUser(ctx, "host", "m1", hostAssets)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	received, err := f.invitations.ListTo(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, received, 2)
}

func TestListInvitations(t *testing.T) {
	f := newFixture(t, "host", "m1", "m2")
	ctx := context.Background()

	id, err := f.svc.CreateSession(ctx, "host", 100)
	require.NoError(t, err)
	hostAssets, err := f.svc.AuthorizeHost(ctx, "host", id)
	require.NoError(t, err)
	invID, err := f.svc.InviteUser(ctx, "host", "m1", hostAssets)
	require.NoError(t, err)

	pending, err := f.svc.ListInvitations(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.Invitation{ID: invID, From: "host", To: "m1", Session: id}, pending[0])

	pending, err = f.svc.ListInvitations(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, pending)

	invAssets, err := f.svc.AuthorizeInvitation(ctx, "m1", invID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.AcceptInvite(ctx, "m1", invAssets))

	pending, err = f.svc.ListInvitations(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
