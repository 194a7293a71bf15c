package dav

import (
	"path"
	"strings"
)

type resourceKind int

const (
	resourceUnknown resourceKind = iota
	resourceServiceRoot
	resourcePrincipal
	resourceHomeSet
	resourceContacts
	resourceContact
)

// resourcePath identifies which DAV resource a request path addresses.
type resourcePath struct {
	kind      resourceKind
	userID    string
	contactID string
}

// allow returns the advertised method set for the resource.
func (p resourcePath) allow() string {
	switch p.kind {
	case resourceContacts:
		return "OPTIONS, PROPFIND, REPORT, GET"
	case resourceContact:
		return "OPTIONS, GET"
	case resourceServiceRoot, resourcePrincipal, resourceHomeSet:
		return "OPTIONS, PROPFIND"
	default:
		return "OPTIONS"
	}
}

// parseResourcePath maps a request path onto the DAV resource tree:
//
//	/api/carddav/                                    service root
//	/api/principals/users/{id}/                      principal
//	/api/addressbooks/users/{id}/                    address-book home
//	/api/addressbooks/users/{id}/contacts/           contacts collection
//	/api/addressbooks/users/{id}/contacts/{cid}.vcf  contact resource
func parseResourcePath(rawPath string) (resourcePath, bool) {
	cleaned := path.Clean("/" + strings.TrimPrefix(rawPath, "/"))

	if cleaned == "/api/carddav" {
		return resourcePath{kind: resourceServiceRoot}, true
	}

	if rest, ok := strings.CutPrefix(cleaned, "/api/principals/users/"); ok {
		userID := strings.TrimSuffix(rest, "/")
		if userID == "" || strings.Contains(userID, "/") {
			return resourcePath{}, false
		}
		return resourcePath{kind: resourcePrincipal, userID: userID}, true
	}

	rest, ok := strings.CutPrefix(cleaned, "/api/addressbooks/users/")
	if !ok {
		return resourcePath{}, false
	}
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(segments) == 1 && segments[0] != "":
		return resourcePath{kind: resourceHomeSet, userID: segments[0]}, true
	case len(segments) == 2 && segments[1] == "contacts":
		return resourcePath{kind: resourceContacts, userID: segments[0]}, true
	case len(segments) == 3 && segments[1] == "contacts":
		contactID := strings.TrimSuffix(segments[2], ".vcf")
		if contactID == "" {
			return resourcePath{}, false
		}
		return resourcePath{kind: resourceContact, userID: segments[0], contactID: contactID}, true
	}
	return resourcePath{}, false
}

func homeSetHref(userID string) string {
	return "/api/addressbooks/users/" + userID + "/"
}

func principalHref(userID string) string {
	return "/api/principals/users/" + userID + "/"
}

func contactsHref(userID string) string {
	return homeSetHref(userID) + "contacts/"
}

func contactHref(userID, contactID string) string {
	return contactsHref(userID) + contactID + ".vcf"
}
