// Package model defines the data structures shared by the fetch, transform
// and output stages.
package model

import (
	"strings"
	"time"
)

// Component kinds as emitted in the CycloneDX "type" field.
const (
	KindLibrary     = "library"
	KindApplication = "application"
)

// UnknownVersion is the sentinel used whenever no real version is known.
const UnknownVersion = "unknown"

// Repository identifies one GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

// Slug returns "owner/name".
func (r Repository) Slug() string {
	return r.Owner + "/" + r.Name
}

// ParseRepository splits "owner/name". The second result is false when
// either half is missing.
func ParseRepository(slug string) (Repository, bool) {
	owner, name, ok := strings.Cut(strings.TrimSpace(slug), "/")
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, false
	}
	return Repository{Owner: owner, Name: name}, true
}

// Identity is the normalized identification of one package.
type Identity struct {
	Ecosystem   string // e.g. "pypi", "npm", "generic"
	Package     string // e.g. "requests", "@babel/core"
	Version     string // sanitized version or UnknownVersion
	CanonicalID string // pkg:{Ecosystem}/{Package}@{Version}
	DisplayName string // {Ecosystem}:{Package}
}

// Component is one library entry of the output document.
type Component struct {
	RefKey      string // unique within a document, derived from CanonicalID
	Kind        string // always KindLibrary
	DisplayName string
	Version     string
	CanonicalID string
}

// RootComponent describes the repository the document was generated for.
type RootComponent struct {
	RefKey      string
	Kind        string // always KindApplication
	Name        string // owner/repo
	Version     string // latest release without leading "v", or UnknownVersion
	CanonicalID string // pkg:repository/{owner}/{repo}@{version}
}

// Document is the assembled bill of materials for one repository.
type Document struct {
	Format          string
	SpecVersion     string
	DocumentVersion int
	SerialNumber    string
	GeneratedAt     time.Time
	ToolName        string
	ToolVersion     string
	Root            RootComponent
	Components      []Component
}
