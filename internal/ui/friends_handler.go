package ui

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cardmate/cardmate/internal/auth"
	"github.com/cardmate/cardmate/internal/store"
)

type friendView struct {
	UserID string
	Name   string
	Email  string
}

type requestView struct {
	ID            string
	RequesterName string
	Message       string
	CreatedAt     time.Time
}

// Friends lists accepted friends and pending incoming requests.
func (h *Handler) Friends(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	contacts, err := h.store.Contacts.ListFriendContacts(r.Context(), user.ID)
	if err != nil {
		httpInternalError(w, r, err, "load friend contacts")
		return
	}
	friends := make([]friendView, 0, len(contacts))
	for _, c := range contacts {
		var email string
		if c.Email != nil {
			email = *c.Email
		}
		friends = append(friends, friendView{
			UserID: c.OwnerID,
			Name:   contactName(c),
			Email:  email,
		})
	}

	pending, err := h.store.FriendRequests.ListPendingForReceiver(r.Context(), user.ID)
	if err != nil {
		httpInternalError(w, r, err, "load friend requests")
		return
	}
	requests := make([]requestView, 0, len(pending))
	for _, req := range pending {
		name := req.RequesterID
		if requester, err := h.store.Users.GetByID(r.Context(), req.RequesterID); err == nil {
			name = requester.DisplayName
		}
		var message string
		if req.Message != nil {
			message = *req.Message
		}
		requests = append(requests, requestView{
			ID:            req.ID,
			RequesterName: name,
			Message:       message,
			CreatedAt:     req.CreatedAt,
		})
	}

	data := map[string]any{
		"Title":    "Friends",
		"User":     user,
		"Friends":  friends,
		"Requests": requests,
	}
	h.render(w, r, "friends.html", h.withFlash(r, data))
}

// SendFriendRequest creates a pending request addressed by friend code.
func (h *Handler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	code := strings.TrimSpace(r.FormValue("friend_code"))
	if code == "" {
		h.redirect(w, r, "/friends", map[string]string{"error": "friend code is required"})
		return
	}

	target, err := h.store.Users.GetByFriendCode(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		h.redirect(w, r, "/friends", map[string]string{"error": "no user with that friend code"})
		return
	}
	if err != nil {
		httpInternalError(w, r, err, "look up friend code")
		return
	}
	if target.ID == user.ID {
		h.redirect(w, r, "/friends", map[string]string{"error": "that is your own friend code"})
		return
	}

	_, err = h.store.FriendRequests.Create(r.Context(), user.ID, target.ID, formValuePtr(r, "message"))
	switch {
	case errors.Is(err, store.ErrAlreadyFriends):
		h.redirect(w, r, "/friends", map[string]string{"error": "you are already friends"})
	case errors.Is(err, store.ErrDuplicateRequest):
		h.redirect(w, r, "/friends", map[string]string{"error": "a request between you is already pending"})
	case err != nil:
		httpInternalError(w, r, err, "create friend request")
	default:
		h.redirect(w, r, "/friends", map[string]string{"status": "request sent"})
	}
}

// AcceptFriendRequest accepts a pending request addressed to the user and
// creates the friendship.
func (h *Handler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.respondToRequest(w, r, store.RequestAccepted)
}

// RejectFriendRequest declines a pending request addressed to the user.
func (h *Handler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.respondToRequest(w, r, store.RequestRejected)
}

func (h *Handler) respondToRequest(w http.ResponseWriter, r *http.Request, status store.RequestStatus) {
	user, _ := auth.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var err error
	if status == store.RequestAccepted {
		err = h.store.FriendRequests.Accept(r.Context(), id, user.ID)
	} else {
		err = h.store.FriendRequests.Reject(r.Context(), id, user.ID)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		h.redirect(w, r, "/friends", map[string]string{"error": "request not found"})
	case errors.Is(err, store.ErrRequestClosed):
		h.redirect(w, r, "/friends", map[string]string{"error": "request was already answered"})
	case err != nil:
		httpInternalError(w, r, err, "respond to friend request")
	case status == store.RequestAccepted:
		h.redirect(w, r, "/friends", map[string]string{"status": "friend added"})
	default:
		h.redirect(w, r, "/friends", map[string]string{"status": "request declined"})
	}
}

// RemoveFriend deletes the friendship with the addressed user.
func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	otherID := chi.URLParam(r, "id")

	err := h.store.Friendships.Delete(r.Context(), user.ID, otherID)
	if errors.Is(err, store.ErrNotFound) {
		h.redirect(w, r, "/friends", map[string]string{"error": "friendship not found"})
		return
	}
	if err != nil {
		httpInternalError(w, r, err, "remove friend")
		return
	}
	h.redirect(w, r, "/friends", map[string]string{"status": "friend removed"})
}

func contactName(c store.Contact) string {
	var first, last string
	if c.FirstName != nil {
		first = *c.FirstName
	}
	if c.LastName != nil {
		last = *c.LastName
	}
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return "Unknown"
	}
	return name
}
