package transform

import (
	"strings"

	"github.com/StinkyLord/gh-sbom-export/internal/model"
	"github.com/StinkyLord/gh-sbom-export/internal/rules"
)

// Reason says why a record was excluded.
type Reason string

const (
	ReasonSelf                Reason = "self"
	ReasonDenylistedName      Reason = "denylisted-name"
	ReasonDenylistedEcosystem Reason = "denylisted-ecosystem"
)

// Filter decides which records of one repository stay out of the output.
type Filter struct {
	self    map[string]struct{}
	markers []string
}

// NewFilter builds the filter for repo using the markers and self prefixes
// of set.
func NewFilter(set rules.Set, repo model.Repository) *Filter {
	set = set.Normalized()
	slug := strings.ToLower(repo.Slug())

	f := &Filter{
		self:    map[string]struct{}{slug: {}},
		markers: set.DenyMarkers,
	}
	for _, p := range set.SelfPrefixes {
		f.self[p+slug] = struct{}{}
	}
	return f
}

// Exclude applies both halves of the filter to a normalized record.
func (f *Filter) Exclude(rec model.SourceRecord, id model.Identity) (Reason, bool) {
	if r, ok := f.ExcludeName(rec.Name); ok {
		return r, true
	}
	return f.ExcludeCanonical(id.CanonicalID)
}

// ExcludeName checks the raw record name against the self identifiers and
// the deny markers.
func (f *Filter) ExcludeName(name string) (Reason, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	if _, ok := f.self[name]; ok {
		return ReasonSelf, true
	}
	for _, m := range f.markers {
		if strings.Contains(name, m) {
			return ReasonDenylistedName, true
		}
	}
	return "", false
}

// ExcludeCanonical checks a canonical id against "pkg:"+marker prefixes.
func (f *Filter) ExcludeCanonical(canonicalID string) (Reason, bool) {
	id := strings.ToLower(canonicalID)
	for _, m := range f.markers {
		if strings.HasPrefix(id, purlScheme+m) {
			return ReasonDenylistedEcosystem, true
		}
	}
	return "", false
}
