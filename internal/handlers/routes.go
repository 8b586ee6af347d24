package handlers

import "net/http"

// Route patterns. Registration is the only route reachable without a user document.
const (
	RouteHealth       = "/healthz"
	RouteUserRegister = "/user/register"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	users := UserHandler{Accounts: deps.Accounts, Playback: deps.Playback, Limiter: deps.Limiter}
	contacts := ContactHandler{Contacts: deps.Contacts, Limiter: deps.Limiter}
	sessions := SessionHandler{Playback: deps.Playback}

	mux.HandleFunc("GET "+RouteHealth, health.Handle)

	mux.HandleFunc("POST "+RouteUserRegister, users.Register)
	mux.HandleFunc("POST /user/status", users.Status)
	mux.HandleFunc("GET /user/invitations", users.Invitations)
	mux.HandleFunc("POST /user/invite", users.Invite)
	mux.HandleFunc("POST /user/invite/accept", users.AcceptInvite)
	mux.HandleFunc("POST /user/invite/reject", users.RejectInvite)
	mux.HandleFunc("DELETE /user", users.Delete)

	mux.HandleFunc("POST /db/contacts", contacts.Add)
	mux.HandleFunc("DELETE /db/contacts", contacts.Remove)

	mux.HandleFunc("POST /session/create", sessions.Create)
	mux.HandleFunc("POST /session/update", sessions.Update)
	mux.HandleFunc("POST /session/signal", sessions.Signal)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts AccountService
	Contacts ContactService
	Playback PlaybackService
	Limiter  RateLimiter
}
