package ui

import (
	"net/http"
	"time"

	"github.com/cardmate/cardmate/internal/auth"
	"github.com/cardmate/cardmate/internal/store"
)

// Profile renders the contact-card editing form.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	contact, err := h.store.Contacts.EnsureForOwner(r.Context(), user.ID)
	if err != nil {
		httpInternalError(w, r, err, "load contact card")
		return
	}

	data := map[string]any{
		"Title":   "My Card",
		"User":    user,
		"Contact": contact,
	}
	h.render(w, r, "profile.html", h.withFlash(r, data))
}

// UpdateProfile saves the submitted contact-card fields. Empty fields clear
// the stored value.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	contact := store.Contact{
		OwnerID:     user.ID,
		FirstName:   formValuePtr(r, "first_name"),
		LastName:    formValuePtr(r, "last_name"),
		Nickname:    formValuePtr(r, "nickname"),
		PhoneNumber: formValuePtr(r, "phone_number"),
		Email:       formValuePtr(r, "email"),
		Instagram:   formValuePtr(r, "instagram"),
		Discord:     formValuePtr(r, "discord"),
		Linkedin:    formValuePtr(r, "linkedin"),
		Pronouns:    formValuePtr(r, "pronouns"),
		Company:     formValuePtr(r, "company"),
		Address:     formValuePtr(r, "address"),
	}

	if raw := r.FormValue("birthday"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.redirect(w, r, "/profile", map[string]string{"error": "birthday must be YYYY-MM-DD"})
			return
		}
		contact.Birthday = &parsed
	}

	if _, err := h.store.Contacts.Update(r.Context(), contact); err != nil {
		httpInternalError(w, r, err, "update contact card")
		return
	}

	h.redirect(w, r, "/profile", map[string]string{"status": "saved"})
}
