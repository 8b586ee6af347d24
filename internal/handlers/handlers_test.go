package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashplayer/backend/internal/accounts"
	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/contacts"
	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/identity"
	"github.com/ashplayer/backend/internal/models"
	"github.com/ashplayer/backend/internal/playback"
	"github.com/ashplayer/backend/internal/repositories"
)

type testServer struct {
	mux      *http.ServeMux
	store    *docstore.Memory
	sessions *repositories.SessionRepository
	invites  *repositories.InvitationRepository
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func newTestServer(limiter RateLimiter) testServer {
	store := docstore.NewMemory()
	users := repositories.NewUserRepository(store)
	contactRepo := repositories.NewContactRepository(store)
	sessions := repositories.NewSessionRepository(store)
	invitations := repositories.NewInvitationRepository(store)

	accountSvc := accounts.NewService(accounts.Dependencies{
		Users:       users,
		Contacts:    contactRepo,
		Invitations: invitations,
		Sessions:    sessions,
		Deletions:   repositories.NewDeletionRepository(store),
		Now:         func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Accounts: accountSvc,
		Contacts: contacts.NewService(users, contactRepo),
		Playback: playback.NewService(sessions, invitations, users),
		Limiter:  limiter,
	})
	return testServer{mux: mux, store: store, sessions: sessions, invites: invitations}
}

func (s testServer) do(t *testing.T, uid, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{UID: uid, Email: uid + "@email.com"}))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s testServer) register(t *testing.T, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		rec := s.do(t, uid, http.MethodPost, "/user/register", map[string]string{"name": uid})
		if rec.Code != http.StatusOK {
			t.Fatalf("register %s: status %d body %s", uid, rec.Code, rec.Body.String())
		}
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if !resp.Error {
		t.Fatalf("expected error envelope, got %+v", resp)
	}
	return resp
}

func TestRegisterTwiceConflicts(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "uid-1")

	rec := srv.do(t, "uid-1", http.MethodPost, "/user/register", map[string]string{"name": "again"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d got %d", http.StatusConflict, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != apperror.CodeAlreadyRegistered {
		t.Fatalf("unexpected code %q", resp.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "host")

	cases := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"emptyName", http.MethodPost, "/user/register", map[string]string{"name": "  "}, http.StatusBadRequest},
		{"badJSON", http.MethodPost, "/session/create", "{", http.StatusBadRequest},
		{"zeroLength", http.MethodPost, "/session/create", map[string]float64{"targetLength": 0}, http.StatusBadRequest},
		{"missingLength", http.MethodPost, "/session/create", map[string]string{}, http.StatusBadRequest},
		{"stringLength", http.MethodPost, "/session/create", `{"targetLength":"100"}`, http.StatusBadRequest},
		{"badSignal", http.MethodPost, "/session/signal", map[string]string{"signal": "time-210", "session": "s"}, http.StatusBadRequest},
		{"missingSession", http.MethodPost, "/session/signal", map[string]string{"signal": "start"}, http.StatusBadRequest},
		{"badEmail", http.MethodPost, "/db/contacts", map[string]string{"email": "nope"}, http.StatusBadRequest},
		{"missingUID", http.MethodDelete, "/db/contacts", map[string]string{}, http.StatusBadRequest},
		{"dottedUID", http.MethodDelete, "/db/contacts", map[string]string{"uid": "u2.x"}, http.StatusBadRequest},
		{"missingInviteID", http.MethodPost, "/user/invite/accept", map[string]string{}, http.StatusBadRequest},
		{"wrongMethod", http.MethodGet, "/session/create", nil, http.StatusMethodNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, "host", tc.method, tc.path, tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestContentTypeRequired(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "host")

	req := httptest.NewRequest(http.MethodPost, "/session/create", strings.NewReader(`{"targetLength":100}`))
	req.Header.Set("Content-Type", "text/plain")
	req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{UID: "host"}))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != apperror.CodeValidationFailed {
		t.Fatalf("unexpected code %q", resp.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "host", "m1", "m2")

	rec := srv.do(t, "host", http.MethodPost, "/session/create", map[string]float64{"targetLength": 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: status %d", rec.Code)
	}
	var created sessionIDResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil || created.ID == "" {
		t.Fatalf("decode session id: %v %+v", err, created)
	}

	for _, member := range []string{"m1", "m2"} {
		rec = srv.do(t, "host", http.MethodPost, "/user/invite", inviteRequest{User: member, Session: created.ID})
		if rec.Code != http.StatusOK {
			t.Fatalf("invite %s: status %d body %s", member, rec.Code, rec.Body.String())
		}
		rec = srv.do(t, member, http.MethodGet, "/user/invitations", nil)
		var pending invitationsResponse
		if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil || len(pending.Invitations) != 1 {
			t.Fatalf("expected one invitation for %s, got %+v err=%v", member, pending, err)
		}
		if got := pending.Invitations[0]; got.From != "host" || got.Session != created.ID {
			t.Fatalf("unexpected invitation %+v", got)
		}
		rec = srv.do(t, member, http.MethodPost, "/user/invite/accept", invitationRequest{ID: pending.Invitations[0].ID})
		if rec.Code != http.StatusOK {
			t.Fatalf("accept %s: status %d body %s", member, rec.Code, rec.Body.String())
		}
	}

	rec = srv.do(t, "m1", http.MethodPost, "/session/update", map[string]any{"targetLength": 100, "session": created.ID})
	var status memberStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil || status.Status != models.MemberReady {
		t.Fatalf("expected ready, got %+v err=%v", status, err)
	}

	rec = srv.do(t, "m2", http.MethodPost, "/session/update", map[string]any{"targetLength": 90, "session": created.ID})
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil || status.Status != models.MemberMismatch {
		t.Fatalf("expected mismatch, got %+v err=%v", status, err)
	}

	rec = srv.do(t, "host", http.MethodPost, "/session/signal", map[string]string{"signal": "start", "session": created.ID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected members not ready, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != apperror.CodeMembersNotReady {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	rec = srv.do(t, "m1", http.MethodPost, "/session/signal", map[string]string{"signal": "end", "session": created.ID})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected non-host to be forbidden, got %d", rec.Code)
	}

	rec = srv.do(t, "host", http.MethodPost, "/session/signal", map[string]string{"signal": "end", "session": created.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected end to succeed, got %d body %s", rec.Code, rec.Body.String())
	}
	if srv.store.Has(models.CollectionSessions, created.ID) {
		t.Fatal("expected session to be deleted after end")
	}

	rec = srv.do(t, "m1", http.MethodPost, "/session/update", map[string]any{"targetLength": 100, "session": created.ID})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected session not found, got %d", rec.Code)
	}
}

func TestInvitationsListing(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "solo")

	rec := srv.do(t, "solo", http.MethodGet, "/user/invitations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list invitations: status %d body %s", rec.Code, rec.Body.String())
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"invitations":[]}` {
		t.Fatalf("expected empty list, got %s", body)
	}

	rec = srv.do(t, "", http.MethodGet, "/user/invitations", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestInviteFailures(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "host", "m1")

	id, err := srv.sessions.Create(context.Background(), models.Session{Host: "host", TargetLength: 10})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	cases := []struct {
		name       string
		uid        string
		body       inviteRequest
		wantStatus int
		wantCode   string
	}{
		{"unregisteredTarget", "host", inviteRequest{User: "ghost", Session: id}, http.StatusBadRequest, apperror.CodeUserNotRegistered},
		{"notHost", "m1", inviteRequest{User: "host", Session: id}, http.StatusForbidden, apperror.CodeNotHost},
		{"unknownSession", "host", inviteRequest{User: "m1", Session: "missing"}, http.StatusNotFound, apperror.CodeSessionNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, tc.uid, http.MethodPost, "/user/invite", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
			if resp := decodeError(t, rec); resp.Code != tc.wantCode {
				t.Fatalf("expected code %q got %q", tc.wantCode, resp.Code)
			}
		})
	}
}

func TestAcceptTwiceAndRejectAfterEnd(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "host", "m1")
	ctx := context.Background()

	id, err := srv.sessions.Create(ctx, models.Session{Host: "host", TargetLength: 10})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	first, err := srv.invites.Create(ctx, models.Invitation{From: "host", To: "m1", Session: id})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	second, err := srv.invites.Create(ctx, models.Invitation{From: "host", To: "m1", Session: id})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	if rec := srv.do(t, "m1", http.MethodPost, "/user/invite/accept", invitationRequest{ID: first}); rec.Code != http.StatusOK {
		t.Fatalf("accept: status %d", rec.Code)
	}
	rec := srv.do(t, "m1", http.MethodPost, "/user/invite/accept", invitationRequest{ID: first})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected second accept to fail, got %d", rec.Code)
	}

	if err := srv.sessions.Delete(ctx, id); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	rec = srv.do(t, "m1", http.MethodPost, "/user/invite/accept", invitationRequest{ID: second})
	if rec.Code != http.StatusGone {
		t.Fatalf("expected session gone, got %d", rec.Code)
	}
	rec = srv.do(t, "m1", http.MethodPost, "/user/invite/reject", invitationRequest{ID: second})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reject to succeed, got %d", rec.Code)
	}
}

func TestContactsAndDeleteUser(t *testing.T) {
	srv := newTestServer(nil)
	srv.register(t, "u1", "u2")

	rec := srv.do(t, "u1", http.MethodPost, "/db/contacts", addContactRequest{Email: " U2@Email.com "})
	if rec.Code != http.StatusOK {
		t.Fatalf("add contact: status %d body %s", rec.Code, rec.Body.String())
	}
	if !srv.store.Has(models.CollectionContacts, "u1") {
		t.Fatal("expected contacts document")
	}

	rec = srv.do(t, "u1", http.MethodPost, "/db/contacts", addContactRequest{Email: "nobody@email.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown email to fail, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != apperror.CodeEmailNotRegistered {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	rec = srv.do(t, "u1", http.MethodDelete, "/db/contacts", deleteContactRequest{UID: "u2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove contact: status %d", rec.Code)
	}

	rec = srv.do(t, "u1", http.MethodPost, "/user/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	rec = srv.do(t, "u1", http.MethodDelete, "/user", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete user: status %d body %s", rec.Code, rec.Body.String())
	}
	if srv.store.Has(models.CollectionUsers, "u1") || srv.store.Has(models.CollectionContacts, "u1") {
		t.Fatal("expected user documents to be removed")
	}
}

func TestRateLimited(t *testing.T) {
	srv := newTestServer(denyAll{})

	rec := srv.do(t, "uid-1", http.MethodPost, "/user/register", map[string]string{"name": "x"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != apperror.CodeRateLimited {
		t.Fatalf("unexpected code %q", resp.Code)
	}
}

func TestMissingIdentity(t *testing.T) {
	srv := newTestServer(nil)

	rec := srv.do(t, "", http.MethodPost, "/session/create", map[string]float64{"targetLength": 1})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

type failingAccounts struct{}

func (failingAccounts) Register(context.Context, identity.Identity, string) error { return nil }
func (failingAccounts) UpdateStatus(context.Context, string) error {
	return apperror.Internal("", errors.New("code=unavailable: firestore backend down"))
}
func (failingAccounts) Delete(context.Context, string) error { return errors.New("raw failure") }

func TestInternalErrorsAreMasked(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{Accounts: failingAccounts{}})
	srv := testServer{mux: mux}

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/user/status"},
		{http.MethodDelete, "/user"},
	} {
		rec := srv.do(t, "uid-1", tc.method, tc.path, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s: expected 500 got %d", tc.method, tc.path, rec.Code)
		}
		body := rec.Body.String()
		if strings.Contains(body, "unavailable") || strings.Contains(body, "raw failure") {
			t.Fatalf("internal diagnostic leaked: %s", body)
		}
		var resp errorResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil || resp.Code != apperror.CodeInternal {
			t.Fatalf("unexpected envelope %s err=%v", body, err)
		}
	}
}
