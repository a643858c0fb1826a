package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/auth"
	"github.com/joffchandler/Sentinel-flight-ops/internal/config"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/orgs"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/joffchandler/Sentinel-flight-ops/internal/reports"
)

// NewRouter mounts every HTTP route behind the shared middleware chain.
func NewRouter(cfg *config.Config, s *Services) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(s.Metrics.Instrument)
	r.Use(AccessLog)
	r.Use(Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.CSRFHeaderName, apperrors.RequestIDHeader},
		ExposedHeaders:   []string{apperrors.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(s.Store))
	r.Handle("/metrics", s.Metrics.Handler())

	authDeps := auth.Deps{
		Accounts:    s.Accounts,
		Principals:  s.Orgs,
		Auditor:     s.Auditor,
		JWTSecret:   cfg.JWTSecret,
		SessionDays: cfg.SessionDays,
		Production:  isProduction,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APIHeaders)

		// Sign-up and login have no session yet, so no CSRF cookie either.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", auth.HandleSignup(authDeps))
			r.With(LoginRateLimit()).Post("/login", auth.HandleLogin(authDeps))
			r.With(CSRF).Post("/logout", auth.HandleLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePrincipal(s.Principals))
			r.Use(CSRF)

			r.Get("/me", principals.HandleMe())
			r.Put("/me/credentials", principals.HandleUpdateCredentials(s.Principals, s.Auditor))
			r.Get("/me/reports", reports.HandleListPersonal(s.Reports))
			r.Get("/me/reports/{report_id}", reports.HandleGetPersonal(s.Reports))
			r.Post("/me/reports/{report_id}/override", reports.HandleOverridePersonal(s.Reports))
			r.Post("/me/evidence", reports.HandleUploadEvidence(s.Reports))

			r.With(EvaluationRateLimit(cfg.EvaluationRPM)).Post("/evaluations", reports.HandleEvaluate(s.Evaluator))

			r.Post("/invites/accept", orgs.HandleAcceptInvite(s.Orgs))

			r.Route("/orgs", func(r chi.Router) {
				r.Post("/", orgs.HandleCreate(s.Orgs))
				r.Get("/", orgs.HandleList(s.Orgs))

				r.Route("/{org_id}", func(r chi.Router) {
					r.Get("/", orgs.HandleGet(s.Orgs))
					r.Put("/settings", orgs.HandleUpdateSettings(s.Orgs))
					r.Get("/audit", orgs.HandleListAudit(s.AuditLog))

					r.Get("/members", orgs.HandleListMembers(s.Orgs))
					r.Put("/members/{principal_id}", orgs.HandleUpdateMemberRole(s.Orgs))
					r.Delete("/members/{principal_id}", orgs.HandleRemoveMember(s.Orgs))

					r.Post("/invites", orgs.HandleCreateInvite(s.Orgs))
					r.Get("/invites", orgs.HandleListInvites(s.Orgs))
					r.Delete("/invites/{invite_id}", orgs.HandleRevokeInvite(s.Orgs))

					r.Post("/evidence", reports.HandleUploadEvidence(s.Reports))

					r.Get("/reports", reports.HandleListOrg(s.Reports))
					r.Get("/reports/stream", reports.HandleStream(s.Reports))
					r.Get("/reports/{report_id}", reports.HandleGetOrg(s.Reports))
					r.Patch("/reports/{report_id}", reports.HandleUpdateMetadata(s.Reports))
					r.Delete("/reports/{report_id}", reports.HandleDelete(s.Reports))
					r.Get("/reports/{report_id}/history", reports.HandleHistory(s.Reports))
					r.Post("/reports/{report_id}/override", reports.HandleOverrideOrg(s.Reports))
				})
			})

			r.Put("/admin/principals/{principal_id}/organisation", orgs.HandleAssignPrincipal(s.Orgs))
		})
	})

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz reports 503 while the document store is unreachable.
func handleReadyz(store docstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Document store unavailable")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"store":  "ok",
		})
	}
}
