// Package rules holds the data that drives package exclusion and ecosystem
// renaming. Changing which packages are dropped or how ecosystems are named
// is an edit to this table (or to the rules section of the config file),
// never to the transform code.
package rules

import "strings"

// Version identifies the built-in rule set. Bump it whenever Default changes.
const Version = "2024-06.1"

// Set is one versioned rule set.
type Set struct {
	Version string `yaml:"version" json:"version"`

	// DenyMarkers are lowercase substrings identifying CI workflow-action
	// packages. A package whose name contains one of them, or whose canonical
	// id starts with "pkg:"+marker, is dropped.
	//
	// Substring matching can block a legitimate package whose name happens
	// to contain a marker; keep the list short.
	DenyMarkers []string `yaml:"deny_markers" json:"deny_markers"`

	// Aliases maps ecosystem names as they appear in "ecosystem:package"
	// records to their public registry name.
	Aliases map[string]string `yaml:"aliases" json:"aliases"`

	// SelfPrefixes are prepended to "owner/repo" to recognise the record the
	// dependency graph emits for the repository itself. The empty prefix
	// (the bare slug) is always checked.
	SelfPrefixes []string `yaml:"self_prefixes" json:"self_prefixes"`
}

// Default returns a fresh copy of the built-in rule set.
func Default() Set {
	return Set{
		Version: Version,
		DenyMarkers: []string{
			"actions/",
			"githubactions/",
			"github/",
		},
		Aliases: map[string]string{
			"pip":       "pypi",
			"pip3":      "pypi",
			"pipenv":    "pypi",
			"poetry":    "pypi",
			"python":    "pypi",
			"rubygems":  "gem",
			"go":        "golang",
			"gomod":     "golang",
			"crates":    "cargo",
			"yarn":      "npm",
			"pnpm":      "npm",
			"packagist": "composer",
		},
		SelfPrefixes: []string{
			"com.github.",
			"github.com/",
		},
	}
}

// Normalized lowercases and trims every entry, dropping empty markers, so
// that lookups can compare against lowercase input directly.
func (s Set) Normalized() Set {
	out := Set{
		Version:      strings.TrimSpace(s.Version),
		Aliases:      make(map[string]string, len(s.Aliases)),
		DenyMarkers:  make([]string, 0, len(s.DenyMarkers)),
		SelfPrefixes: make([]string, 0, len(s.SelfPrefixes)),
	}
	for _, m := range s.DenyMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			out.DenyMarkers = append(out.DenyMarkers, m)
		}
	}
	for from, to := range s.Aliases {
		from = strings.ToLower(strings.TrimSpace(from))
		to = strings.ToLower(strings.TrimSpace(to))
		if from != "" && to != "" {
			out.Aliases[from] = to
		}
	}
	for _, p := range s.SelfPrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out.SelfPrefixes = append(out.SelfPrefixes, p)
		}
	}
	return out
}

// Alias returns the registry name for ecosystem, or ecosystem itself when
// no alias is defined. The input is expected in lowercase.
func (s Set) Alias(ecosystem string) string {
	if to, ok := s.Aliases[ecosystem]; ok {
		return to
	}
	return ecosystem
}

// Merge overlays the non-empty parts of override on s. A non-nil empty
// slice or map in override clears the corresponding list.
func (s Set) Merge(override Set) Set {
	out := s
	if override.Version != "" {
		out.Version = override.Version
	}
	if override.DenyMarkers != nil {
		out.DenyMarkers = override.DenyMarkers
	}
	if override.Aliases != nil {
		out.Aliases = override.Aliases
	}
	if override.SelfPrefixes != nil {
		out.SelfPrefixes = override.SelfPrefixes
	}
	return out
}
