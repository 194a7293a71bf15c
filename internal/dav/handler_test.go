package dav

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cardmate/cardmate/internal/auth"
	"github.com/cardmate/cardmate/internal/store"
	"github.com/cardmate/cardmate/internal/vcard"
)

type fakeContactRepo struct {
	byID    map[string]*store.Contact
	friends map[string][]store.Contact
}

func (f *fakeContactRepo) EnsureForOwner(ctx context.Context, ownerID string) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (f *fakeContactRepo) GetByOwner(ctx context.Context, ownerID string) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (f *fakeContactRepo) GetByID(ctx context.Context, id string) (*store.Contact, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeContactRepo) Update(ctx context.Context, contact store.Contact) (*store.Contact, error) {
	return nil, store.ErrNotFound
}

func (f *fakeContactRepo) ListFriendContacts(ctx context.Context, userID string) ([]store.Contact, error) {
	return f.friends[userID], nil
}

type fakeFriendshipRepo struct {
	pairs map[string]bool
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (f *fakeFriendshipRepo) Exists(ctx context.Context, userID, otherID string) (bool, error) {
	return f.pairs[pairKey(userID, otherID)], nil
}

func (f *fakeFriendshipRepo) Delete(ctx context.Context, userID, otherID string) error {
	delete(f.pairs, pairKey(userID, otherID))
	return nil
}

func (f *fakeFriendshipRepo) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func newTestHandler(contacts *fakeContactRepo, friendships *fakeFriendshipRepo) *Handler {
	if contacts == nil {
		contacts = &fakeContactRepo{}
	}
	if friendships == nil {
		friendships = &fakeFriendshipRepo{}
	}
	return NewHandler(&store.Store{Contacts: contacts, Friendships: friendships}, zerolog.Nop())
}

func authedRequest(method, path, body string, user *store.User) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if user != nil {
		req = req.WithContext(auth.WithUser(req.Context(), user))
	}
	return req
}

// Structures for decoding multistatus bodies in assertions.
type testMultistatus struct {
	XMLName   xml.Name       `xml:"multistatus"`
	SyncToken string         `xml:"sync-token"`
	Responses []testResponse `xml:"response"`
}

type testResponse struct {
	Href     string         `xml:"href"`
	Status   string         `xml:"status"`
	Propstat []testPropstat `xml:"propstat"`
}

type testPropstat struct {
	Status string   `xml:"status"`
	Prop   testProp `xml:"prop"`
}

type testProp struct {
	DisplayName    string `xml:"displayname"`
	GetETag        string `xml:"getetag"`
	GetContentType string `xml:"getcontenttype"`
	GetCTag        string `xml:"getctag"`
	AddressData    string `xml:"address-data"`
	SyncToken      string `xml:"sync-token"`
}

func decodeMultistatus(t *testing.T, rec *httptest.ResponseRecorder) testMultistatus {
	t.Helper()
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", rec.Code, rec.Body.String())
	}
	if dav := rec.Header().Get("DAV"); dav != "1, 2, 3, addressbook" {
		t.Errorf("expected DAV capability header, got %q", dav)
	}
	var ms testMultistatus
	if err := xml.Unmarshal(rec.Body.Bytes(), &ms); err != nil {
		t.Fatalf("response is not well-formed XML: %v\n%s", err, rec.Body.String())
	}
	return ms
}

func TestWellKnownRedirect(t *testing.T) {
	h := newTestHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.WellKnown(rec, httptest.NewRequest(http.MethodGet, "/.well-known/carddav", nil))

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/carddav/" {
		t.Errorf("expected redirect to /api/carddav/, got %q", loc)
	}
}

func TestOptionsAllowPerResource(t *testing.T) {
	h := newTestHandler(nil, nil)
	cases := []struct {
		path  string
		allow string
	}{
		{"/api/carddav/", "OPTIONS, PROPFIND"},
		{"/api/principals/users/alice/", "OPTIONS, PROPFIND"},
		{"/api/addressbooks/users/alice/", "OPTIONS, PROPFIND"},
		{"/api/addressbooks/users/alice/contacts/", "OPTIONS, PROPFIND, REPORT, GET"},
		{"/api/addressbooks/users/alice/contacts/c1.vcf", "OPTIONS, GET"},
	}
	for _, tc := range cases {
		// Deliberately no authenticated user: OPTIONS is a discovery call.
		rec := httptest.NewRecorder()
		h.Options(rec, httptest.NewRequest(http.MethodOptions, tc.path, nil))

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", tc.path, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != tc.allow {
			t.Errorf("%s: expected Allow %q, got %q", tc.path, tc.allow, allow)
		}
		if dav := rec.Header().Get("DAV"); dav != "1, 2, 3, addressbook" {
			t.Errorf("%s: expected DAV capability header, got %q", tc.path, dav)
		}
	}
}

func TestOptionsUnknownPath(t *testing.T) {
	h := newTestHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.Options(rec, httptest.NewRequest(http.MethodOptions, "/api/unknown/", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown resource, got %d", rec.Code)
	}
}

func TestPropfindRequiresAuth(t *testing.T) {
	h := newTestHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.Propfind(rec, httptest.NewRequest("PROPFIND", "/api/carddav/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if challenge := rec.Header().Get("WWW-Authenticate"); !strings.Contains(challenge, `Basic realm="CardDAV Server"`) {
		t.Errorf("expected basic auth challenge, got %q", challenge)
	}
}

func TestPropfindForeignUserPathForbidden(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice"}

	// The addressed principal does not even exist; the mismatch alone rejects.
	rec := httptest.NewRecorder()
	h.Propfind(rec, authedRequest("PROPFIND", "/api/addressbooks/users/bob/contacts/", "", user))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign user path, got %d", rec.Code)
	}
}

func TestPropfindServiceRoot(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Propfind(rec, authedRequest("PROPFIND", "/api/carddav/", "", user))

	ms := decodeMultistatus(t, rec)
	if len(ms.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(ms.Responses))
	}
	if ms.Responses[0].Href != "/api/carddav/" {
		t.Errorf("unexpected href %q", ms.Responses[0].Href)
	}
	if !strings.Contains(rec.Body.String(), "/api/principals/users/alice/") {
		t.Errorf("expected current-user-principal href in body:\n%s", rec.Body.String())
	}
}

func TestPropfindPrincipal(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice", DisplayName: "Alice"}

	rec := httptest.NewRecorder()
	h.Propfind(rec, authedRequest("PROPFIND", "/api/principals/users/alice/", "", user))

	ms := decodeMultistatus(t, rec)
	if len(ms.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(ms.Responses))
	}
	if ms.Responses[0].Propstat[0].Prop.DisplayName != "Alice" {
		t.Errorf("expected principal displayname Alice, got %q", ms.Responses[0].Propstat[0].Prop.DisplayName)
	}
	if !strings.Contains(rec.Body.String(), "/api/addressbooks/users/alice/") {
		t.Errorf("expected addressbook-home-set href in body:\n%s", rec.Body.String())
	}
}

func TestPropfindContactsDepthZero(t *testing.T) {
	a := sampleContact("c1")
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {a}}}, nil)
	user := &store.User{ID: "alice"}

	req := authedRequest("PROPFIND", "/api/addressbooks/users/alice/contacts/", "", user)
	req.Header.Set("Depth", "0")
	rec := httptest.NewRecorder()
	h.Propfind(rec, req)

	ms := decodeMultistatus(t, rec)
	if len(ms.Responses) != 1 {
		t.Fatalf("expected collection-only response, got %d responses", len(ms.Responses))
	}
	prop := ms.Responses[0].Propstat[0].Prop
	if prop.GetCTag == "" {
		t.Errorf("expected getctag on collection")
	}
	if prop.SyncToken != EncodeSyncToken([]store.Contact{a}) {
		t.Errorf("expected collection sync-token to match current snapshot")
	}
	if strings.Contains(rec.Body.String(), ".vcf") {
		t.Errorf("depth 0 must not list members:\n%s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "sync-collection") {
		t.Errorf("expected supported-report-set to advertise sync-collection")
	}
}

func TestPropfindContactsDepthOne(t *testing.T) {
	a := sampleContact("c1")
	b := sampleContact("c2")
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {b, a}}}, nil)
	user := &store.User{ID: "alice"}

	// Depth defaults to 1 when the header is absent.
	rec := httptest.NewRecorder()
	h.Propfind(rec, authedRequest("PROPFIND", "/api/addressbooks/users/alice/contacts/", "", user))

	ms := decodeMultistatus(t, rec)
	if len(ms.Responses) != 2 {
		t.Fatalf("expected 2 member responses, got %d", len(ms.Responses))
	}
	// Members come back sorted by contact id.
	if ms.Responses[0].Href != "/api/addressbooks/users/alice/contacts/c1.vcf" {
		t.Errorf("unexpected first href %q", ms.Responses[0].Href)
	}
	for i, r := range ms.Responses {
		prop := r.Propstat[0].Prop
		if prop.GetETag == "" {
			t.Errorf("response %d missing getetag", i)
		}
		if prop.GetContentType != "text/vcard; charset=utf-8" {
			t.Errorf("response %d unexpected content type %q", i, prop.GetContentType)
		}
		if prop.AddressData != "" {
			t.Errorf("PROPFIND must not inline address-data")
		}
	}
}

func TestPropfindEscapesDisplayName(t *testing.T) {
	c := sampleContact("c1")
	c.FirstName = strptr(`<script>&"'`)
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {c}}}, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Propfind(rec, authedRequest("PROPFIND", "/api/addressbooks/users/alice/contacts/", "", user))

	ms := decodeMultistatus(t, rec)
	if name := ms.Responses[0].Propstat[0].Prop.DisplayName; !strings.HasPrefix(name, "<script>") {
		t.Errorf("displayname did not round-trip through escaping: %q", name)
	}
	if strings.Contains(rec.Body.String(), "<script>") {
		t.Errorf("unescaped markup leaked into the response:\n%s", rec.Body.String())
	}
}

func TestPropfindContactResourceNotAllowed(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Propfind(rec, authedRequest("PROPFIND", "/api/addressbooks/users/alice/contacts/c1.vcf", "", user))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "OPTIONS, GET" {
		t.Errorf("expected Allow 'OPTIONS, GET', got %q", allow)
	}
}

func TestGetContact(t *testing.T) {
	c := sampleContact("c1")
	contacts := &fakeContactRepo{byID: map[string]*store.Contact{"c1": &c}}
	friendships := &fakeFriendshipRepo{pairs: map[string]bool{pairKey("alice", c.OwnerID): true}}
	h := newTestHandler(contacts, friendships)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/api/addressbooks/users/alice/contacts/c1.vcf", "", user))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/vcard; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	if etag := rec.Header().Get("ETag"); etag != ETag(c) {
		t.Errorf("expected etag %s, got %s", ETag(c), etag)
	}
	if rec.Body.String() != vcard.Encode(c) {
		t.Errorf("body is not the encoded vcard:\n%s", rec.Body.String())
	}
}

func TestGetContactNotFound(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/api/addressbooks/users/alice/contacts/ghost.vcf", "", user))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetContactWithoutFriendship(t *testing.T) {
	c := sampleContact("c1")
	contacts := &fakeContactRepo{byID: map[string]*store.Contact{"c1": &c}}
	h := newTestHandler(contacts, &fakeFriendshipRepo{})
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/api/addressbooks/users/alice/contacts/c1.vcf", "", user))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without friendship, got %d", rec.Code)
	}
}

func TestGetOwnCardForbidden(t *testing.T) {
	// The visible collection holds friends' cards only, never the caller's own.
	own := sampleContact("c1")
	own.OwnerID = "alice"
	contacts := &fakeContactRepo{byID: map[string]*store.Contact{"c1": &own}}
	h := newTestHandler(contacts, &fakeFriendshipRepo{})
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/api/addressbooks/users/alice/contacts/c1.vcf", "", user))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for own card, got %d", rec.Code)
	}
}

func TestGetCollectionNotAllowed(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/api/addressbooks/users/alice/contacts/", "", user))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "OPTIONS, PROPFIND, REPORT, GET" {
		t.Errorf("unexpected Allow %q", allow)
	}
}

func TestReportAddressbookQuery(t *testing.T) {
	c := sampleContact("c1")
	c.FirstName = strptr(`<script>&"'`)
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {c}}}, nil)
	user := &store.User{ID: "alice"}

	body := `<?xml version="1.0" encoding="UTF-8"?>
<card:addressbook-query xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">
  <d:prop><d:getetag/><card:address-data/></d:prop>
</card:addressbook-query>`

	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/api/addressbooks/users/alice/contacts/", body, user))

	ms := decodeMultistatus(t, rec)
	if len(ms.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(ms.Responses))
	}
	prop := ms.Responses[0].Propstat[0].Prop
	if prop.GetETag != ETag(c) {
		t.Errorf("expected etag %s, got %s", ETag(c), prop.GetETag)
	}
	// The decoded address-data must round-trip back to the raw vcard.
	if prop.AddressData != vcard.Encode(c) {
		t.Errorf("address-data mismatch:\n%s", prop.AddressData)
	}
	// Markup in contact fields must arrive escaped, never as raw tags.
	if strings.Contains(rec.Body.String(), "<script>") {
		t.Errorf("unescaped markup leaked into the response:\n%s", rec.Body.String())
	}
}

func TestReportEmptyBodyDefaultsToQuery(t *testing.T) {
	c := sampleContact("c1")
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {c}}}, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/api/addressbooks/users/alice/contacts/", "", user))

	ms := decodeMultistatus(t, rec)
	if len(ms.Responses) != 1 || ms.Responses[0].Propstat[0].Prop.AddressData == "" {
		t.Errorf("expected full address-data response for empty body")
	}
}

func TestReportMalformedBody(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/api/addressbooks/users/alice/contacts/", "<unclosed", user))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestReportOnNonCollectionNotAllowed(t *testing.T) {
	h := newTestHandler(nil, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/api/addressbooks/users/alice/", "", user))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func syncReportBody(token string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<d:sync-collection xmlns:d="DAV:">
  <d:sync-token>` + token + `</d:sync-token>
</d:sync-collection>`
}

func TestReportSyncCollectionReportsDeletions(t *testing.T) {
	a := sampleContact("c1")
	b := sampleContact("c2")
	oldToken := EncodeSyncToken([]store.Contact{a, b})

	// b is no longer visible: its owner unfriended alice.
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {a}}}, nil)
	user := &store.User{ID: "alice"}

	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/api/addressbooks/users/alice/contacts/", syncReportBody(oldToken), user))

	ms := decodeMultistatus(t, rec)
	if ms.SyncToken != EncodeSyncToken([]store.Contact{a}) {
		t.Errorf("expected fresh sync token in multistatus")
	}
	if len(ms.Responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(ms.Responses))
	}

	kept := ms.Responses[0]
	if kept.Href != "/api/addressbooks/users/alice/contacts/c1.vcf" || kept.Propstat[0].Prop.AddressData == "" {
		t.Errorf("expected surviving contact re-sent in full, got %+v", kept)
	}

	deleted := ms.Responses[1]
	if deleted.Href != "/api/addressbooks/users/alice/contacts/c2.vcf" {
		t.Errorf("expected deletion for c2, got href %q", deleted.Href)
	}
	if !strings.Contains(deleted.Status, "404") {
		t.Errorf("expected 404 status on deleted resource, got %q", deleted.Status)
	}
	if len(deleted.Propstat) != 0 {
		t.Errorf("deleted resource must carry a bare status, got propstat %+v", deleted.Propstat)
	}
}

func TestReportSyncCollectionIdempotent(t *testing.T) {
	a := sampleContact("c1")
	b := sampleContact("c2")
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {b, a}}}, nil)
	user := &store.User{ID: "alice"}
	token := EncodeSyncToken([]store.Contact{a, b})

	run := func() string {
		rec := httptest.NewRecorder()
		h.Report(rec, authedRequest("REPORT", "/api/addressbooks/users/alice/contacts/", syncReportBody(token), user))
		if rec.Code != http.StatusMultiStatus {
			t.Fatalf("expected 207, got %d", rec.Code)
		}
		return rec.Body.String()
	}

	if first, second := run(), run(); first != second {
		t.Errorf("identical sync requests produced different bodies")
	}
}

func TestReportSyncCollectionUnknownToken(t *testing.T) {
	a := sampleContact("c1")
	h := newTestHandler(&fakeContactRepo{friends: map[string][]store.Contact{"alice": {a}}}, nil)
	user := &store.User{ID: "alice"}

	// A garbage token degrades to a full initial sync rather than an error.
	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/api/addressbooks/users/alice/contacts/", syncReportBody("not-a-token!!"), user))

	ms := decodeMultistatus(t, rec)
	if len(ms.Responses) != 1 {
		t.Fatalf("expected full listing, got %d responses", len(ms.Responses))
	}
	if ms.Responses[0].Propstat[0].Prop.AddressData == "" {
		t.Errorf("expected address-data in initial sync")
	}
}

func TestParseResourcePath(t *testing.T) {
	cases := []struct {
		path    string
		ok      bool
		kind    resourceKind
		userID  string
		contact string
	}{
		{"/api/carddav/", true, resourceServiceRoot, "", ""},
		{"/api/carddav", true, resourceServiceRoot, "", ""},
		{"/api/principals/users/alice/", true, resourcePrincipal, "alice", ""},
		{"/api/addressbooks/users/alice/", true, resourceHomeSet, "alice", ""},
		{"/api/addressbooks/users/alice/contacts/", true, resourceContacts, "alice", ""},
		{"/api/addressbooks/users/alice/contacts/c1.vcf", true, resourceContact, "alice", "c1"},
		{"/api/addressbooks/users/alice/contacts/c1", true, resourceContact, "alice", "c1"},
		{"/api/principals/users//", false, 0, "", ""},
		{"/api/addressbooks/users/alice/other/", false, 0, "", ""},
		{"/api/", false, 0, "", ""},
		{"/somewhere/else", false, 0, "", ""},
	}
	for _, tc := range cases {
		res, ok := parseResourcePath(tc.path)
		if ok != tc.ok {
			t.Errorf("%s: expected ok=%v, got %v", tc.path, tc.ok, ok)
			continue
		}
		if !ok {
			continue
		}
		if res.kind != tc.kind || res.userID != tc.userID || res.contactID != tc.contact {
			t.Errorf("%s: got %+v", tc.path, res)
		}
	}
}
