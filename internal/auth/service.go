package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/cardmate/cardmate/internal/config"
	"github.com/cardmate/cardmate/internal/store"
)

const stateCookieName = "cardmate_oauth_state"

// Service handles OIDC sign-in for the web UI and Basic auth for DAV
// clients.
type Service struct {
	cfg      *config.Config
	store    *store.Store
	sessions *SessionManager
	logger   zerolog.Logger

	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewService(ctx context.Context, cfg *config.Config, st *store.Store, sessions *SessionManager, logger zerolog.Logger) (*Service, error) {
	issuer := cfg.OAuth.IssuerURL
	if issuer == "" {
		issuer = strings.TrimSuffix(cfg.OAuth.DiscoveryURL, "/.well-known/openid-configuration")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	return &Service{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		logger:   logger,
		oauth: oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + cfg.OAuth.RedirectPath,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OAuth.ClientID}),
	}, nil
}

// BeginOAuth starts the authorization code flow with a CSRF state nonce.
func (s *Service) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleOAuthCallback completes the flow, provisions the user and their
// contact card, and starts a session.
func (s *Service) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Error().Err(err).Msg("oauth code exchange failed")
		http.Error(w, "sign-in failed", http.StatusBadGateway)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "missing id_token in provider response", http.StatusBadGateway)
		return
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		s.logger.Error().Err(err).Msg("id token verification failed")
		http.Error(w, "sign-in failed", http.StatusUnauthorized)
		return
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil || claims.Subject == "" {
		http.Error(w, "sign-in failed", http.StatusBadGateway)
		return
	}

	user, err := s.store.Users.UpsertOAuthUser(ctx, claims.Subject, claims.Email, claims.Name)
	if err != nil {
		s.logger.Error().Err(err).Msg("user upsert failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if _, err := s.store.Contacts.EnsureForOwner(ctx, user.ID); err != nil {
		s.logger.Error().Err(err).Msg("contact provisioning failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := s.sessions.Issue(w, user.ID); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session cookie.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RequireSession loads the signed-in user from the session cookie or
// redirects to the login page.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.sessions.CurrentUserID(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		user, err := s.store.Users.GetByID(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			s.sessions.Clear(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireDAVAuth enforces HTTP Basic auth for DAV endpoints. The username is
// the principal's user id; the password only has to be non-empty since DAV
// clients hold no separate credential.
func (s *Service) RequireDAVAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username == "" || password == "" {
			davChallenge(w)
			return
		}

		user, err := s.store.Users.GetByID(r.Context(), username)
		if errors.Is(err, store.ErrNotFound) {
			// Same challenge as missing credentials so unknown ids are
			// indistinguishable from bad ones.
			davChallenge(w)
			return
		}
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func davChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="CardDAV Server"`)
	w.Header().Set("DAV", "1, 2, 3, addressbook")
	http.Error(w, "authentication required", http.StatusUnauthorized)
}
