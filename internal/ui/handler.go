package ui

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/cardmate/cardmate/internal/auth"
	"github.com/cardmate/cardmate/internal/config"
	"github.com/cardmate/cardmate/internal/store"
)

// Handler serves server-rendered HTML pages.
type Handler struct {
	cfg         *config.Config
	store       *store.Store
	authService *auth.Service
	templates   map[string]*template.Template
}

func NewHandler(cfg *config.Config, store *store.Store, authService *auth.Service) *Handler {
	return &Handler{cfg: cfg, store: store, authService: authService, templates: templates}
}

// Login renders the sign-in page for anonymous visitors.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title": "Sign in",
	}
	h.render(w, r, "login.html", h.withFlash(r, data))
}

// Home shows the signed-in user's overview with their CardDAV endpoint.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	contacts, err := h.store.Contacts.ListFriendContacts(r.Context(), user.ID)
	if err != nil {
		httpInternalError(w, r, err, "load friend contacts")
		return
	}
	pending, err := h.store.FriendRequests.ListPendingForReceiver(r.Context(), user.ID)
	if err != nil {
		httpInternalError(w, r, err, "load friend requests")
		return
	}

	data := map[string]any{
		"Title":        "Home",
		"User":         user,
		"FriendCount":  len(contacts),
		"PendingCount": len(pending),
		"CardDAVURL":   strings.TrimRight(h.cfg.BaseURL, "/") + "/api/addressbooks/users/" + user.ID + "/contacts/",
	}
	h.render(w, r, "home.html", h.withFlash(r, data))
}
