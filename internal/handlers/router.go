package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"guildmembers/internal/security"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Auth          *AuthHandler
	Members       *MemberHandler
	Memberships   *MembershipHandler
	Signups       *SignupHandler
	Middleware    *Middleware
	Startup       *StartupStatus
	DB            Pinger
	SignupLimiter *security.RateLimiter
	// TrustProxy rewrites RemoteAddr from X-Real-IP / X-Forwarded-For
	TrustProxy    bool
}

// NewRouter wires the JSON API
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(Logging)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.Startup.Health(h.DB))

	r.Post("/auth/login", h.Auth.Login)
	r.With(RateLimit(h.SignupLimiter)).Post("/signup", h.Signups.Submit)

	r.Group(func(r chi.Router) {
		r.Use(h.Middleware.RequireStaff)

		r.Get("/auth/me", h.Auth.Me)

		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.Members.ListMembers)
			r.Post("/", h.Members.CreateMember)
			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", h.Members.GetMember)
				r.Put("/", h.Members.UpdateMember)
				r.Get("/memberships", h.Members.ListMemberships)
				r.Post("/memberships", h.Members.CreateMembership)
				r.Get("/payments", h.Members.ListPayments)
				r.Post("/payments", h.Members.RecordPayment)
				r.Post("/welcome-email", h.Members.SendWelcomeEmail)
			})
		})

		r.Get("/payments", h.Members.ListAllPayments)

		r.Get("/memberships/{id}/tags", h.Memberships.ListTags)
		r.Post("/memberships/{id}/tags", h.Memberships.IssueTag)

		r.Route("/temporary-members", func(r chi.Router) {
			r.Get("/", h.Signups.ListSignups)
			r.Get("/{id}", h.Signups.GetSignup)
			r.Post("/{id}/review", h.Signups.Review)
			r.Post("/{id}/convert", h.Signups.Convert)
		})
	})

	return r
}
