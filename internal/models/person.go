// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

package models

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Person is the normalized record for cast, crew and studio entries.
// Media servers return these arrays in several shapes (bare strings,
// {Name}, {name, role, thumb}); NormalizePersons folds all of them into
// this one type at the store boundary.
type Person struct {
	// Name is the person or studio name.
	Name string `json:"name"`

	// Role is the character or credit role, empty when not provided.
	Role string `json:"role,omitempty"`

	// Thumb is the thumbnail URL, empty when not provided.
	Thumb string `json:"thumb,omitempty"`
}

// rawPerson covers every object shape observed in media-server payloads.
// Field pairs handle both lower- and upper-case key conventions.
type rawPerson struct {
	Name      string `json:"name"`
	NameUpper string `json:"Name"`
	Role      string `json:"role"`
	RoleUpper string `json:"Role"`
	Thumb     string `json:"thumb"`
	Type      string `json:"type"`
}

// NormalizePersons parses a raw JSON array of mixed-shape person entries
// into []Person. Entries that cannot be interpreted are dropped. A nil or
// empty payload yields nil, never an error.
func NormalizePersons(raw []byte) []Person {
	if len(raw) == 0 {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	persons := make([]Person, 0, len(entries))
	for _, entry := range entries {
		if p, ok := normalizeOne(entry); ok {
			persons = append(persons, p)
		}
	}

	if len(persons) == 0 {
		return nil
	}
	return persons
}

// normalizeOne interprets a single entry as either a bare string or an
// object with optional role/thumb fields.
func normalizeOne(entry json.RawMessage) (Person, bool) {
	var name string
	if err := json.Unmarshal(entry, &name); err == nil {
		name = strings.TrimSpace(name)
		if name == "" {
			return Person{}, false
		}
		return Person{Name: name}, true
	}

	var rp rawPerson
	if err := json.Unmarshal(entry, &rp); err != nil {
		return Person{}, false
	}

	p := Person{
		Name:  strings.TrimSpace(firstNonEmpty(rp.Name, rp.NameUpper)),
		Role:  strings.TrimSpace(firstNonEmpty(rp.Role, rp.RoleUpper)),
		Thumb: strings.TrimSpace(rp.Thumb),
	}
	if p.Name == "" {
		return Person{}, false
	}
	return p, true
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// PersonNames extracts just the names from a normalized person list.
func PersonNames(persons []Person) []string {
	if len(persons) == 0 {
		return nil
	}
	names := make([]string, 0, len(persons))
	for _, p := range persons {
		names = append(names, p.Name)
	}
	return names
}
