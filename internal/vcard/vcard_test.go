package vcard

import (
	"strings"
	"testing"
	"time"

	"github.com/cardmate/cardmate/internal/store"
)

func strptr(s string) *string { return &s }

func TestEncodeMinimalCard(t *testing.T) {
	card := Encode(store.Contact{ID: "c1"})

	expected := "BEGIN:VCARD\r\n" +
		"VERSION:4.0\r\n" +
		"UID:c1\r\n" +
		"FN:Unknown\r\n" +
		"N:;;;;\r\n" +
		"REV:2024-01-01T00:00:00Z\r\n" +
		"END:VCARD\r\n"

	if card != expected {
		t.Errorf("minimal card mismatch:\ngot:\n%s\nwant:\n%s", card, expected)
	}
}

func TestEncodeOmitsEmptyOptionalFields(t *testing.T) {
	card := Encode(store.Contact{
		ID:        "c1",
		FirstName: strptr("Ada"),
		Email:     strptr(""),
		Nickname:  nil,
	})

	for _, property := range []string{"EMAIL", "TEL", "NICKNAME", "ORG", "ADR", "BDAY", "X-PRONOUNS", "X-SOCIALPROFILE"} {
		if strings.Contains(card, property) {
			t.Errorf("expected no %s line for empty field, card:\n%s", property, card)
		}
	}
}

func TestEncodeFullCard(t *testing.T) {
	birthday := time.Date(1990, 5, 15, 0, 0, 0, 0, time.UTC)
	card := Encode(store.Contact{
		ID:          "c1",
		FirstName:   strptr("Ada"),
		LastName:    strptr("Lovelace"),
		Nickname:    strptr("ada"),
		PhoneNumber: strptr("+15555550100"),
		Email:       strptr("ada@example.com"),
		Instagram:   strptr("ada.gram"),
		Discord:     strptr("ada#0001"),
		Linkedin:    strptr("ada-lovelace"),
		Pronouns:    strptr("she/her"),
		Company:     strptr("Analytical Engines"),
		Address:     strptr("12 Byron St"),
		Birthday:    &birthday,
	})

	lines := []string{
		"UID:c1",
		"FN:Ada Lovelace",
		"N:Lovelace;Ada;;;",
		"EMAIL;TYPE=INTERNET:ada@example.com",
		"TEL;TYPE=CELL:+15555550100",
		"NICKNAME:ada",
		"item1.X-SOCIALPROFILE;X-USER=ada.gram:https://instagram.com/ada.gram",
		"item1.X-ABLABEL:Instagram",
		"item2.X-SOCIALPROFILE;X-USER=ada#0001:https://discord.com",
		"item2.X-ABLABEL:Discord",
		"item3.X-SOCIALPROFILE;X-USER=ada-lovelace:https://linkedin.com/in/ada-lovelace",
		"item3.X-ABLABEL:LinkedIn",
		"ORG:Analytical Engines",
		"ADR;TYPE=HOME:;;12 Byron St;;;;",
		"BDAY:1990-05-15",
		"X-PRONOUNS:she/her",
	}
	for _, line := range lines {
		if !strings.Contains(card, line+"\r\n") {
			t.Errorf("expected line %q in card:\n%s", line, card)
		}
	}

	// Each property appears exactly once.
	for _, line := range lines {
		if strings.Count(card, line+"\r\n") != 1 {
			t.Errorf("expected exactly one %q line", line)
		}
	}
}

func TestSocialProfileCounterSkipsEmptyProfiles(t *testing.T) {
	card := Encode(store.Contact{
		ID:       "c1",
		Discord:  strptr("grace#1906"),
		Linkedin: strptr("grace-hopper"),
	})

	if !strings.Contains(card, "item1.X-ABLABEL:Discord\r\n") {
		t.Errorf("expected Discord as item1, card:\n%s", card)
	}
	if !strings.Contains(card, "item2.X-ABLABEL:LinkedIn\r\n") {
		t.Errorf("expected LinkedIn as item2, card:\n%s", card)
	}
	if strings.Contains(card, "item3.") {
		t.Errorf("expected no item3 group, card:\n%s", card)
	}
}

func TestEncodeFullNameFallsBackToUnknown(t *testing.T) {
	card := Encode(store.Contact{ID: "c1", Nickname: strptr("ghost")})
	if !strings.Contains(card, "FN:Unknown\r\n") {
		t.Errorf("expected FN fallback, card:\n%s", card)
	}
}

func TestEncodeBirthdayUsesDateComponents(t *testing.T) {
	// A midnight birthday in a western timezone is the previous day in UTC.
	loc := time.FixedZone("UTC-8", -8*3600)
	birthday := time.Date(2000, 12, 25, 0, 0, 0, 0, loc)

	card := Encode(store.Contact{ID: "c1", Birthday: &birthday})
	if !strings.Contains(card, "BDAY:2000-12-25\r\n") {
		t.Errorf("expected BDAY:2000-12-25, card:\n%s", card)
	}
}

func TestEncodeEscapesStructuralCharacters(t *testing.T) {
	card := Encode(store.Contact{
		ID:        "c1",
		FirstName: strptr("Ann; Marie"),
		Company:   strptr("Smith, Jones\\Co"),
	})

	if !strings.Contains(card, "FN:Ann\\; Marie\r\n") {
		t.Errorf("expected escaped semicolon in FN, card:\n%s", card)
	}
	if !strings.Contains(card, "ORG:Smith\\, Jones\\\\Co\r\n") {
		t.Errorf("expected escaped comma and backslash in ORG, card:\n%s", card)
	}
}

func TestEscapeValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a;b", "a\\;b"},
		{"a,b", "a\\,b"},
		{"a\\b", "a\\\\b"},
		{"a\nb", "a\\nb"},
		{"all\\;of,\nthem", "all\\\\\\;of\\,\\nthem"},
	}
	for _, tc := range cases {
		if got := EscapeValue(tc.in); got != tc.want {
			t.Errorf("EscapeValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
