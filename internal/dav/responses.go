package dav

import (
	"sort"
	"strings"

	"github.com/cardmate/cardmate/internal/store"
	"github.com/cardmate/cardmate/internal/vcard"
)

func serviceRootResponse(userID string) response {
	return response{
		Href: "/api/carddav/",
		Propstat: []propstat{{
			Prop: prop{
				ResourceType:         resourceType{Collection: &struct{}{}},
				CurrentUserPrincipal: &hrefProp{Href: principalHref(userID)},
			},
			Status: httpStatusOK,
		}},
	}
}

func principalResponse(user *store.User) response {
	return response{
		Href: principalHref(user.ID),
		Propstat: []propstat{{
			Prop: prop{
				DisplayName:          user.DisplayName,
				ResourceType:         resourceType{Principal: &struct{}{}},
				CurrentUserPrincipal: &hrefProp{Href: principalHref(user.ID)},
				PrincipalURL:         &hrefProp{Href: principalHref(user.ID)},
				AddressbookHomeSet:   &hrefProp{Href: homeSetHref(user.ID)},
			},
			Status: httpStatusOK,
		}},
	}
}

func homeSetResponse(userID string) response {
	return response{
		Href: homeSetHref(userID),
		Propstat: []propstat{{
			Prop: prop{
				DisplayName:  "Addressbooks for " + userID,
				ResourceType: resourceType{Collection: &struct{}{}},
			},
			Status: httpStatusOK,
		}},
	}
}

func contactsCollectionResponse(userID string, contacts []store.Contact) response {
	return response{
		Href: contactsHref(userID),
		Propstat: []propstat{{
			Prop: prop{
				DisplayName:     "Contacts",
				ResourceType:    resourceType{Collection: &struct{}{}, AddressBook: &struct{}{}},
				AddressBookDesc: "Auto-updating contacts",
				CTag:            CTag(contacts),
				SyncToken:       EncodeSyncToken(contacts),
				SupportedReportSet: &supportedReportSet{Reports: []supportedReport{
					{Report: reportName{AddressbookQuery: &struct{}{}}},
					{Report: reportName{SyncCollection: &struct{}{}}},
				}},
			},
			Status: httpStatusOK,
		}},
	}
}

func contactMetadataResponses(userID string, contacts []store.Contact) []response {
	responses := make([]response, 0, len(contacts))
	for _, c := range contacts {
		responses = append(responses, response{
			Href: contactHref(userID, c.ID),
			Propstat: []propstat{{
				Prop: prop{
					DisplayName:    contactDisplayName(c),
					GetContentType: "text/vcard; charset=utf-8",
					GetETag:        ETag(c),
				},
				Status: httpStatusOK,
			}},
		})
	}
	return responses
}

func addressDataResponses(userID string, contacts []store.Contact) []response {
	responses := make([]response, 0, len(contacts))
	for _, c := range contacts {
		responses = append(responses, response{
			Href: contactHref(userID, c.ID),
			Propstat: []propstat{{
				Prop: prop{
					GetETag:     ETag(c),
					AddressData: vcard.Encode(c),
				},
				Status: httpStatusOK,
			}},
		})
	}
	return responses
}

// syncCollectionResponses implements the RFC 6578 delta: every currently
// visible contact is re-sent in full, and ids the client knew about that are
// no longer visible surface as 404 responses.
func syncCollectionResponses(userID string, contacts []store.Contact, oldToken string) []response {
	previous := DecodeSyncToken(oldToken)

	current := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		current[c.ID] = struct{}{}
	}

	var deleted []string
	for id := range previous {
		if _, ok := current[id]; !ok {
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)

	responses := addressDataResponses(userID, contacts)
	for _, id := range deleted {
		responses = append(responses, response{
			Href:   contactHref(userID, id),
			Status: httpStatusNotFound,
		})
	}
	return responses
}

func contactDisplayName(c store.Contact) string {
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
