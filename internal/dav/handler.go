package dav

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cardmate/cardmate/internal/auth"
	"github.com/cardmate/cardmate/internal/store"
	"github.com/cardmate/cardmate/internal/vcard"
)

// davCapabilities is advertised on every DAV response.
const davCapabilities = "1, 2, 3, addressbook"

// maxDAVBodyBytes caps REPORT/PROPFIND request bodies.
const maxDAVBodyBytes int64 = 1 << 20

// Handler serves the read-only CardDAV surface: capability discovery,
// property queries and address-book reports over each user's friend contacts.
type Handler struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewHandler(st *store.Store, logger zerolog.Logger) *Handler {
	return &Handler{store: st, logger: logger}
}

// WellKnown handles /.well-known/carddav discovery per RFC 6764.
func (h *Handler) WellKnown(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DAV", davCapabilities)
	http.Redirect(w, r, "/api/carddav/", http.StatusMovedPermanently)
}

// Options advertises per-resource capabilities. It runs without
// authentication so clients can discover the server before credentials exist.
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	res, ok := parseResourcePath(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Allow", res.allow())
	w.Header().Set("DAV", davCapabilities)
	w.WriteHeader(http.StatusOK)
}

// MethodNotAllowed rejects a registered method the addressed resource does
// not support, echoing that resource's Allow set.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	res, ok := parseResourcePath(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.methodNotAllowed(w, res)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, res resourcePath) {
	w.Header().Set("Allow", res.allow())
	w.Header().Set("DAV", davCapabilities)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

// principal resolves the authenticated user and enforces that the path's
// user segment, when present, addresses that same principal. Mismatches are
// rejected before any lookup so other users' collections never leak.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request, res resourcePath) (*store.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="CardDAV Server"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if res.userID != "" && res.userID != user.ID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return user, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	res, ok := parseResourcePath(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if res.kind != resourceContact {
		h.methodNotAllowed(w, res)
		return
	}

	user, ok := h.principal(w, r, res)
	if !ok {
		return
	}

	contact, err := h.store.Contacts.GetByID(r.Context(), res.contactID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "contact not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, r, err, "load contact")
		return
	}

	friends, err := h.store.Friendships.Exists(r.Context(), user.ID, contact.OwnerID)
	if err != nil {
		h.internalError(w, r, err, "check friendship")
		return
	}
	if !friends {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("DAV", davCapabilities)
	w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
	w.Header().Set("ETag", ETag(*contact))
	_, _ = w.Write([]byte(vcard.Encode(*contact)))
}

func (h *Handler) Propfind(w http.ResponseWriter, r *http.Request) {
	res, ok := parseResourcePath(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	user, ok := h.principal(w, r, res)
	if !ok {
		return
	}

	depth := strings.TrimSpace(r.Header.Get("Depth"))
	if depth == "" {
		depth = "1"
	}

	var responses []response
	switch res.kind {
	case resourceServiceRoot:
		responses = []response{serviceRootResponse(user.ID)}
	case resourcePrincipal:
		responses = []response{principalResponse(user)}
	case resourceHomeSet:
		contacts, err := h.friendContacts(r.Context(), user.ID)
		if err != nil {
			h.internalError(w, r, err, "list friend contacts")
			return
		}
		responses = []response{
			homeSetResponse(user.ID),
			contactsCollectionResponse(user.ID, contacts),
		}
	case resourceContacts:
		contacts, err := h.friendContacts(r.Context(), user.ID)
		if err != nil {
			h.internalError(w, r, err, "list friend contacts")
			return
		}
		if depth == "0" {
			responses = []response{contactsCollectionResponse(user.ID, contacts)}
		} else {
			responses = contactMetadataResponses(user.ID, contacts)
		}
	default:
		h.methodNotAllowed(w, res)
		return
	}

	h.writeMultistatus(w, r, multistatus{
		XmlnsD:    "DAV:",
		XmlnsCard: "urn:ietf:params:xml:ns:carddav",
		XmlnsCS:   "http://calendarserver.org/ns/",
		Response:  responses,
	})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	res, ok := parseResourcePath(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if res.kind != resourceContacts {
		h.methodNotAllowed(w, res)
		return
	}

	user, ok := h.principal(w, r, res)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDAVBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// An empty body gets the default addressbook-query treatment.
	var report reportRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := safeUnmarshalXML(body, &report); err != nil {
			http.Error(w, "invalid REPORT body", http.StatusBadRequest)
			return
		}
	}

	contacts, err := h.friendContacts(r.Context(), user.ID)
	if err != nil {
		h.internalError(w, r, err, "list friend contacts")
		return
	}

	ms := multistatus{
		XmlnsD:    "DAV:",
		XmlnsCard: "urn:ietf:params:xml:ns:carddav",
		XmlnsCS:   "http://calendarserver.org/ns/",
	}

	if report.XMLName.Local == "sync-collection" {
		ms.Response = syncCollectionResponses(user.ID, contacts, report.SyncToken)
		ms.SyncToken = EncodeSyncToken(contacts)
	} else {
		ms.Response = addressDataResponses(user.ID, contacts)
	}

	h.writeMultistatus(w, r, ms)
}

// friendContacts fetches the visible contact set and pins a stable order so
// repeated responses over unchanged data are byte-identical.
func (h *Handler) friendContacts(ctx context.Context, userID string) ([]store.Contact, error) {
	contacts, err := h.store.Contacts.ListFriendContacts(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	return contacts, nil
}

// writeMultistatus fully composes the 207 body before sending a single byte,
// so a marshalling failure never truncates a multistatus document.
func (h *Handler) writeMultistatus(w http.ResponseWriter, r *http.Request, ms multistatus) {
	payload, err := xml.Marshal(ms)
	if err != nil {
		h.internalError(w, r, err, "marshal multistatus")
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("DAV", davCapabilities)
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(payload)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, op string) {
	h.logger.Error().Err(err).Str("op", op).Str("path", r.URL.Path).Msg("dav request failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
