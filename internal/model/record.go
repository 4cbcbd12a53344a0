package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PurlRefType is the SPDX referenceType carrying a package URL.
const PurlRefType = "purl"

// ExternalRef is one SPDX externalRefs entry.
type ExternalRef struct {
	Category string `json:"referenceCategory"`
	Type     string `json:"referenceType"`
	Locator  string `json:"referenceLocator"`
}

// SourceRecord is one package from the SPDX dependency manifest.
type SourceRecord struct {
	Name         string        `json:"name"`
	Version      RawVersion    `json:"versionInfo"`
	ExternalRefs []ExternalRef `json:"externalRefs,omitempty"`
}

// PurlLocator returns the locator of the first purl-typed external ref.
func (r SourceRecord) PurlLocator() (string, bool) {
	for _, ref := range r.ExternalRefs {
		if strings.EqualFold(strings.TrimSpace(ref.Type), PurlRefType) {
			if loc := strings.TrimSpace(ref.Locator); loc != "" {
				return loc, true
			}
		}
	}
	return "", false
}

// Usable reports whether the record carries enough to identify a package:
// a non-blank name or a purl reference.
func (r SourceRecord) Usable() bool {
	if strings.TrimSpace(r.Name) != "" {
		return true
	}
	_, ok := r.PurlLocator()
	return ok
}

// RawVersion is an optional version value as found in the manifest.
// Valid is false when the field was absent or null. Non-string JSON values
// are kept in their textual form.
type RawVersion struct {
	Value string
	Valid bool
}

// Version builds a present RawVersion.
func Version(v string) RawVersion {
	return RawVersion{Value: v, Valid: true}
}

// NoVersion is the absent RawVersion.
var NoVersion = RawVersion{}

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (v *RawVersion) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = NoVersion
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Version(s)
		return nil
	}
	// Numbers, booleans, and anything else: keep the raw text so the
	// sanitizer can decide what to do with it.
	*v = Version(string(trimmed))
	return nil
}

// MarshalJSON writes null for an absent version.
func (v RawVersion) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Value)
}
