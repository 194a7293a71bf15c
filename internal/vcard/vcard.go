package vcard

import (
	"fmt"
	"strings"

	"github.com/cardmate/cardmate/internal/store"
)

// Encode renders a contact as a vCard 4.0 text block. Optional fields that
// are nil or empty produce no line at all. A contact with only an id still
// yields a valid card.
func Encode(c store.Contact) string {
	firstName := deref(c.FirstName)
	lastName := deref(c.LastName)
	fullName := strings.TrimSpace(firstName + " " + lastName)
	if fullName == "" {
		fullName = "Unknown"
	}

	var sb strings.Builder
	sb.WriteString("BEGIN:VCARD\r\n")
	sb.WriteString("VERSION:4.0\r\n")
	sb.WriteString(fmt.Sprintf("UID:%s\r\n", c.ID))
	sb.WriteString(fmt.Sprintf("FN:%s\r\n", EscapeValue(fullName)))

	// N: Last;First;Middle;Prefix;Suffix
	sb.WriteString(fmt.Sprintf("N:%s;%s;;;\r\n", EscapeValue(lastName), EscapeValue(firstName)))

	if v := deref(c.Email); v != "" {
		sb.WriteString(fmt.Sprintf("EMAIL;TYPE=INTERNET:%s\r\n", v))
	}
	if v := deref(c.PhoneNumber); v != "" {
		sb.WriteString(fmt.Sprintf("TEL;TYPE=CELL:%s\r\n", v))
	}
	if v := deref(c.Nickname); v != "" {
		sb.WriteString(fmt.Sprintf("NICKNAME:%s\r\n", EscapeValue(v)))
	}

	// Apple clients only surface social profiles through grouped itemN lines
	// with a matching X-ABLABEL. The counter is local to this card.
	item := 1
	if v := deref(c.Instagram); v != "" {
		writeSocialProfile(&sb, item, v, "https://instagram.com/"+v, "Instagram")
		item++
	}
	if v := deref(c.Discord); v != "" {
		writeSocialProfile(&sb, item, v, "https://discord.com", "Discord")
		item++
	}
	if v := deref(c.Linkedin); v != "" {
		writeSocialProfile(&sb, item, v, "https://linkedin.com/in/"+v, "LinkedIn")
		item++
	}

	if v := deref(c.Company); v != "" {
		sb.WriteString(fmt.Sprintf("ORG:%s\r\n", EscapeValue(v)))
	}
	if v := deref(c.Address); v != "" {
		sb.WriteString(fmt.Sprintf("ADR;TYPE=HOME:;;%s;;;;\r\n", EscapeValue(v)))
	}
	if c.Birthday != nil {
		// Format from date components so a stored birthday never shifts a day
		// under timezone conversion.
		year, month, day := c.Birthday.Date()
		sb.WriteString(fmt.Sprintf("BDAY:%04d-%02d-%02d\r\n", year, int(month), day))
	}
	if v := deref(c.Pronouns); v != "" {
		sb.WriteString(fmt.Sprintf("X-PRONOUNS:%s\r\n", EscapeValue(v)))
	}

	// Change detection rides on the ETag, so REV stays constant.
	sb.WriteString("REV:2024-01-01T00:00:00Z\r\n")
	sb.WriteString("END:VCARD\r\n")

	return sb.String()
}

func writeSocialProfile(sb *strings.Builder, item int, handle, url, label string) {
	sb.WriteString(fmt.Sprintf("item%d.X-SOCIALPROFILE;X-USER=%s:%s\r\n", item, handle, url))
	sb.WriteString(fmt.Sprintf("item%d.X-ABLABEL:%s\r\n", item, label))
}

// EscapeValue escapes characters that are structurally significant in vCard
// property values.
func EscapeValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
