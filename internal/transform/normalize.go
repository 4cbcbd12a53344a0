// Package transform turns raw dependency-graph records into the filtered,
// canonically identified component list of a bill of materials.
package transform

import (
	"net/url"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/StinkyLord/gh-sbom-export/internal/model"
	"github.com/StinkyLord/gh-sbom-export/internal/rules"
)

const (
	purlScheme       = "pkg:"
	genericEcosystem = "generic"
)

// Normalizer derives the Identity of a SourceRecord.
type Normalizer struct {
	rules rules.Set
}

// NewNormalizer returns a Normalizer using the alias table of set.
func NewNormalizer(set rules.Set) *Normalizer {
	return &Normalizer{rules: set.Normalized()}
}

// Normalize derives the identity of rec. version is the already sanitized
// version of the record. Normalize never fails: input it cannot make sense
// of ends up in the generic ecosystem under its raw name.
func (n *Normalizer) Normalize(rec model.SourceRecord, version string) model.Identity {
	name := strings.TrimSpace(rec.Name)

	if loc, ok := rec.PurlLocator(); ok {
		if id, ok := fromPurl(loc, version); ok {
			return id
		}
		if name == "" {
			name = loc
		}
	}

	if hasPrefixFold(name, purlScheme) {
		if id, ok := fromPurl(name, version); ok {
			return id
		}
	}

	if eco, pkg, ok := strings.Cut(name, ":"); ok {
		eco = strings.ToLower(strings.TrimSpace(eco))
		pkg = strings.TrimSpace(pkg)
		if eco != "" && pkg != "" && !strings.Contains(eco, "/") {
			return NewIdentity(n.rules.Alias(eco), pkg, version)
		}
	}

	return NewIdentity(genericEcosystem, name, version)
}

// NewIdentity builds an Identity from its parts. An '@' inside a package
// name segment is escaped and trailing slashes are dropped so the canonical
// id still splits back into the same parts.
func NewIdentity(ecosystem, pkg, version string) model.Identity {
	if version == "" {
		version = model.UnknownVersion
	}
	if trimmed := strings.TrimRight(pkg, "/"); trimmed != "" {
		pkg = trimmed
	} else {
		pkg = strings.ReplaceAll(pkg, "/", "%2F")
	}
	pkg = escapeInnerAt(pkg)
	return model.Identity{
		Ecosystem:   ecosystem,
		Package:     pkg,
		Version:     version,
		CanonicalID: purlScheme + ecosystem + "/" + pkg + "@" + version,
		DisplayName: ecosystem + ":" + pkg,
	}
}

// ParseCanonicalID splits "pkg:{eco}/{pkg}@{version}". The ecosystem ends at
// the first '/', the version starts at the first '@' that does not open a
// path segment (so "@scope/name" stays in the package).
func ParseCanonicalID(id string) (eco, pkg, version string, ok bool) {
	rest, found := strings.CutPrefix(id, purlScheme)
	if !found {
		return "", "", "", false
	}
	eco, rest, found = strings.Cut(rest, "/")
	if !found {
		return "", "", "", false
	}
	at := versionSeparator(rest)
	if at < 0 {
		return "", "", "", false
	}
	pkg, version = rest[:at], rest[at+1:]
	if eco == "" || pkg == "" || version == "" {
		return "", "", "", false
	}
	return eco, pkg, version, true
}

// fromPurl parses a package URL locator. Type, namespace and name are kept
// exactly as written in the locator; only the version is replaced, by
// version unless that is unknown and the purl carries its own. Qualifiers
// and subpath are dropped.
func fromPurl(loc, version string) (model.Identity, bool) {
	eco, pkg, purlVersion, ok := splitPurl(loc)
	if !ok {
		return model.Identity{}, false
	}
	if version == model.UnknownVersion && purlVersion != "" {
		version = Sanitize(purlVersion)
	}
	return NewIdentity(eco, pkg, version), true
}

// splitPurl cuts loc into its raw type, namespace/name and decoded version.
// The package text is not decoded or case-folded.
func splitPurl(loc string) (eco, pkg, version string, ok bool) {
	if !hasPrefixFold(loc, purlScheme) {
		return "", "", "", false
	}
	rest := strings.TrimLeft(loc[len(purlScheme):], "/")
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	eco, rest, found := strings.Cut(rest, "/")
	if !found {
		return "", "", "", false
	}
	pkg = rest
	var rawVersion string
	if i := strings.LastIndexByte(rest, '@'); i > 0 && rest[i-1] != '/' {
		pkg, rawVersion = rest[:i], rest[i+1:]
	}
	pkg = strings.Trim(pkg, "/")
	eco = strings.TrimSpace(eco)
	if eco == "" || pkg == "" {
		return "", "", "", false
	}

	if p, err := packageurl.FromString(loc); err == nil {
		version = p.Version
	} else {
		version = unescapePath(rawVersion)
	}
	return eco, pkg, version, true
}

func unescapePath(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// versionSeparator returns the index of the first '@' in s that does not
// start a path segment, or -1.
func versionSeparator(s string) int {
	for i := 1; i < len(s); i++ {
		if s[i] == '@' && s[i-1] != '/' {
			return i
		}
	}
	return -1
}

func escapeInnerAt(pkg string) string {
	if versionSeparator(pkg) < 0 {
		return pkg
	}
	var b strings.Builder
	for i := 0; i < len(pkg); i++ {
		if pkg[i] == '@' && i > 0 && pkg[i-1] != '/' {
			b.WriteString("%40")
			continue
		}
		b.WriteByte(pkg[i])
	}
	return b.String()
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
