package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cardmate/cardmate/internal/auth"
	"github.com/cardmate/cardmate/internal/config"
	"github.com/cardmate/cardmate/internal/dav"
	"github.com/cardmate/cardmate/internal/http/csrf"
	"github.com/cardmate/cardmate/internal/http/ratelimit"
	"github.com/cardmate/cardmate/internal/metrics"
	"github.com/cardmate/cardmate/internal/store"
	"github.com/cardmate/cardmate/internal/ui"
)

func init() {
	for _, method := range []string{
		"PROPFIND",
		"REPORT",
	} {
		chi.RegisterMethod(method)
	}
}

// NewRouter wires all HTTP routes for the UI and the CardDAV endpoints.
func NewRouter(cfg *config.Config, st *store.Store, authService *auth.Service, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// DAV endpoints: 20 requests per second, burst of 50 (sync clients fan out)
	davRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(20), 50, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(overrideMethod)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	davHandler := dav.NewHandler(st, logger)

	// Fixed discovery entrypoint per RFC 6764.
	r.Get("/.well-known/carddav", davHandler.WellKnown)
	r.MethodFunc("OPTIONS", "/.well-known/carddav", davHandler.WellKnown)
	r.MethodFunc("PROPFIND", "/.well-known/carddav", davHandler.WellKnown)

	uiHandler := ui.NewHandler(cfg, st, authService)

	r.Get("/login", uiHandler.Login)
	r.Route("/auth", func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		r.Get("/login", authService.BeginOAuth)
		r.Get("/callback", authService.HandleOAuthCallback)
	})
	r.With(authService.RequireSession, csrf.Middleware(cfg)).Post("/auth/logout", authService.Logout)

	r.Group(func(r chi.Router) {
		r.Use(authService.RequireSession)
		r.Use(csrf.Middleware(cfg))

		r.Get("/", uiHandler.Home)
		r.Get("/profile", uiHandler.Profile)
		r.Post("/profile", uiHandler.UpdateProfile)
		r.Get("/friends", uiHandler.Friends)

		r.Post("/friends/requests", uiHandler.SendFriendRequest)
		r.Post("/friends/requests/{id}/accept", uiHandler.AcceptFriendRequest)
		r.Post("/friends/requests/{id}/reject", uiHandler.RejectFriendRequest)
		r.Delete("/friends/{id}", uiHandler.RemoveFriend)
		r.Post("/friends/{id}/delete", uiHandler.RemoveFriend) // HTML form fallback
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(davRateLimiter.Middleware())
		r.MethodNotAllowed(davHandler.MethodNotAllowed)

		// OPTIONS stays reachable without credentials for client discovery.
		r.MethodFunc("OPTIONS", "/*", davHandler.Options)

		r.Group(func(r chi.Router) {
			r.Use(authService.RequireDAVAuth)
			r.MethodFunc("GET", "/*", davHandler.Get)
			r.MethodFunc("PROPFIND", "/*", davHandler.Propfind)
			r.MethodFunc("REPORT", "/*", davHandler.Report)
		})
	})

	return r
}

func overrideMethod(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if r.Method == http.MethodPost {
			if m := strings.TrimSpace(r.PostFormValue("_method")); m != "" {
				method = m
			} else if m := strings.TrimSpace(r.URL.Query().Get("_method")); m != "" {
				method = m
			}
		}
		switch strings.ToUpper(method) {
		case http.MethodPut, http.MethodDelete:
			r.Method = strings.ToUpper(method)
		}
		next.ServeHTTP(w, r)
	})
}
