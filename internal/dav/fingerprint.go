package dav

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cardmate/cardmate/internal/store"
)

// ETag derives a content fingerprint for one contact. Identical field values
// always produce an identical token. The token is pre-quoted for use in ETag
// headers and DAV getetag properties.
func ETag(c store.Contact) string {
	var birthday *string
	if c.Birthday != nil {
		s := c.Birthday.UTC().Format("2006-01-02")
		birthday = &s
	}

	payload, _ := json.Marshal(struct {
		ID          string  `json:"id"`
		FirstName   *string `json:"firstName"`
		LastName    *string `json:"lastName"`
		Nickname    *string `json:"nickname"`
		PhoneNumber *string `json:"phoneNumber"`
		Email       *string `json:"email"`
		Instagram   *string `json:"instagram"`
		Discord     *string `json:"discord"`
		Linkedin    *string `json:"linkedin"`
		Pronouns    *string `json:"pronouns"`
		Company     *string `json:"company"`
		Address     *string `json:"address"`
		Birthday    *string `json:"birthday"`
	}{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Nickname:    c.Nickname,
		PhoneNumber: c.PhoneNumber,
		Email:       c.Email,
		Instagram:   c.Instagram,
		Discord:     c.Discord,
		Linkedin:    c.Linkedin,
		Pronouns:    c.Pronouns,
		Company:     c.Company,
		Address:     c.Address,
		Birthday:    birthday,
	})

	sum := sha256.Sum256(payload)
	return `"` + c.ID + "-" + hex.EncodeToString(sum[:])[:8] + `"`
}

// CTag fingerprints the whole visible collection. It is independent of the
// order contacts were fetched in.
func CTag(contacts []store.Contact) string {
	etags := make([]string, 0, len(contacts))
	for _, c := range contacts {
		etags = append(etags, ETag(c))
	}
	sort.Strings(etags)

	sum := sha256.Sum256([]byte(strings.Join(etags, ",")))
	return hex.EncodeToString(sum[:])[:16]
}

// EncodeSyncToken captures the current id-to-etag snapshot as an opaque
// token. Equal snapshots encode to byte-identical tokens.
func EncodeSyncToken(contacts []store.Contact) string {
	pairs := make([]string, 0, len(contacts))
	for _, c := range contacts {
		pairs = append(pairs, c.ID+":"+ETag(c))
	}
	sort.Strings(pairs)
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(pairs, ",")))
}

// DecodeSyncToken reverses EncodeSyncToken. Any malformed or foreign token
// decodes to an empty snapshot, which callers treat as "no prior sync state".
func DecodeSyncToken(token string) map[string]string {
	snapshot := make(map[string]string)

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil || len(decoded) == 0 {
		return snapshot
	}

	for _, entry := range strings.Split(string(decoded), ",") {
		id, etag, ok := strings.Cut(entry, ":")
		if !ok || id == "" || etag == "" {
			continue
		}
		snapshot[id] = etag
	}
	return snapshot
}
