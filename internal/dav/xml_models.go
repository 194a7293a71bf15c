package dav

import "encoding/xml"

type multistatus struct {
	XMLName   xml.Name   `xml:"d:multistatus"`
	XmlnsD    string     `xml:"xmlns:d,attr"`
	XmlnsCard string     `xml:"xmlns:card,attr"`
	XmlnsCS   string     `xml:"xmlns:cs,attr,omitempty"`
	SyncToken string     `xml:"d:sync-token,omitempty"`
	Response  []response `xml:"d:response"`
}

type response struct {
	Href     string     `xml:"d:href"`
	Propstat []propstat `xml:"d:propstat,omitempty"`
	Status   string     `xml:"d:status,omitempty"`
}

type propstat struct {
	Prop   prop   `xml:"d:prop"`
	Status string `xml:"d:status"`
}

type prop struct {
	DisplayName          string              `xml:"d:displayname,omitempty"`
	ResourceType         resourceType        `xml:"d:resourcetype"`
	GetETag              string              `xml:"d:getetag,omitempty"`
	GetContentType       string              `xml:"d:getcontenttype,omitempty"`
	AddressData          string              `xml:"card:address-data,omitempty"`
	AddressBookDesc      string              `xml:"card:addressbook-description,omitempty"`
	SyncToken            string              `xml:"d:sync-token,omitempty"`
	CTag                 string              `xml:"cs:getctag,omitempty"`
	CurrentUserPrincipal *hrefProp           `xml:"d:current-user-principal,omitempty"`
	PrincipalURL         *hrefProp           `xml:"d:principal-URL,omitempty"`
	AddressbookHomeSet   *hrefProp           `xml:"card:addressbook-home-set,omitempty"`
	SupportedReportSet   *supportedReportSet `xml:"d:supported-report-set,omitempty"`
}

type resourceType struct {
	Collection  *struct{} `xml:"d:collection,omitempty"`
	AddressBook *struct{} `xml:"card:addressbook,omitempty"`
	Principal   *struct{} `xml:"d:principal,omitempty"`
}

type hrefProp struct {
	Href string `xml:"d:href"`
}

type supportedReportSet struct {
	Reports []supportedReport `xml:"d:supported-report"`
}

type supportedReport struct {
	Report reportName `xml:"d:report"`
}

type reportName struct {
	AddressbookQuery *struct{} `xml:"card:addressbook-query,omitempty"`
	SyncCollection   *struct{} `xml:"d:sync-collection,omitempty"`
}

// reportRequest captures just enough of a REPORT body to dispatch on the
// report type. Dispatch keys off the root element name, not body substrings.
type reportRequest struct {
	XMLName   xml.Name
	SyncToken string `xml:"DAV: sync-token"`
}

const (
	httpStatusOK       = "HTTP/1.1 200 OK"
	httpStatusNotFound = "HTTP/1.1 404 Not Found"
)
