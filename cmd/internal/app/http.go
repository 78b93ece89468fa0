package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Fillsogood/promptbook/cmd/internal/web"
)

// routes builds the full HTTP surface. Middleware order matters: the request id must exist
// before logging, and panics are recovered inside the logger so they are logged as 500s.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	if a.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(func(next http.Handler) http.Handler { return WithRequestLogging(next, a.log) })
	r.Use(middleware.Recoverer)
	r.Use(WithSecurityHeaders)
	r.Use(a.metrics.Middleware)
	r.Use(func(next http.Handler) http.Handler { return WithCORS(next, a.cfg, a.log) })

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		web.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		web.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api/accounts", a.authAPI.Routes)
	r.Route("/api/prompt", func(r chi.Router) {
		r.Use(a.authAPI.RequireAuth)
		a.promptAPI.Routes(r)
	})

	return r
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && a.pool == nil {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}

	if a.pool != nil {
		if err := PingDB(r.Context(), a.pool, dbReadyPingTimeout); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
