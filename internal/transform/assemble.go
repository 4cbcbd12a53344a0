package transform

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/StinkyLord/gh-sbom-export/internal/logger"
	"github.com/StinkyLord/gh-sbom-export/internal/model"
	"github.com/StinkyLord/gh-sbom-export/internal/rules"
)

// RootEcosystem is the ecosystem of the synthetic root component.
const RootEcosystem = "repository"

// ErrRefKeyCollision is reported when two different packages derive the
// same reference key.
var ErrRefKeyCollision = errors.New("bom-ref collision")

// CollisionError describes a reference key shared by two canonical ids.
type CollisionError struct {
	RefKey string
	First  string
	Second string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%v: %q derived from both %q and %q", ErrRefKeyCollision, e.RefKey, e.First, e.Second)
}

func (e *CollisionError) Unwrap() error { return ErrRefKeyCollision }

var refKeyReplacer = strings.NewReplacer("/", "-", "@", "-")

// RefKey derives the document-unique reference key of a canonical id.
func RefKey(canonicalID string) string {
	return refKeyReplacer.Replace(canonicalID)
}

// Assembly is the result of assembling one repository. The counters satisfy
// len(Components) == Input - Excluded - Malformed - Duplicates.
type Assembly struct {
	Repository   model.Repository
	Root         model.RootComponent
	Components   []model.Component
	RulesVersion string

	Input      int
	Excluded   int
	Malformed  int
	Duplicates int
}

// identityCacheSize bounds the identities remembered across repositories.
const identityCacheSize = 8192

// identityKey holds every record field that Normalize and SanitizeVersion
// read.
type identityKey struct {
	name    string
	locator string
	version model.RawVersion
}

// Assembler builds component lists. It may be shared between goroutines.
// Identities are cached across Assemble calls.
type Assembler struct {
	rules      rules.Set
	normalizer *Normalizer
	identities *lru.Cache[identityKey, model.Identity]
}

// NewAssembler returns an Assembler driven by set.
func NewAssembler(set rules.Set) *Assembler {
	set = set.Normalized()
	// lru.New only fails for a non-positive size.
	identities, _ := lru.New[identityKey, model.Identity](identityCacheSize)
	return &Assembler{rules: set, normalizer: NewNormalizer(set), identities: identities}
}

// identity sanitizes and normalizes rec, reusing an earlier result for an
// identical record.
func (a *Assembler) identity(rec model.SourceRecord) model.Identity {
	loc, _ := rec.PurlLocator()
	key := identityKey{name: rec.Name, locator: loc, version: rec.Version}
	if id, ok := a.identities.Get(key); ok {
		return id
	}
	id := a.normalizer.Normalize(rec, SanitizeVersion(rec.Version))
	a.identities.Add(key, id)
	return id
}

// Assemble turns the records of repo into the component list plus the root
// component. releaseTag is the latest release tag, nil when there is none.
// Records are processed in input order and the output keeps that order.
func (a *Assembler) Assemble(repo model.Repository, records []model.SourceRecord, releaseTag *string) (*Assembly, error) {
	log := logger.Logger()
	filter := NewFilter(a.rules, repo)
	slug := repo.Slug()

	out := &Assembly{
		Repository:   repo,
		RulesVersion: a.rules.Version,
		Input:        len(records),
		Components:   make([]model.Component, 0, len(records)),
	}
	seen := make(map[string]string, len(records))

	for i, rec := range records {
		if !rec.Usable() {
			out.Malformed++
			log.Warnf("%s: skipping record %d: no name and no purl reference", slug, i)
			continue
		}
		id := a.identity(rec)
		if reason, ok := filter.Exclude(rec, id); ok {
			out.Excluded++
			log.Debugf("%s: excluded %q as %s (%s)", slug, rec.Name, id.CanonicalID, reason)
			continue
		}

		key := RefKey(id.CanonicalID)
		if prev, ok := seen[key]; ok {
			if prev == id.CanonicalID {
				out.Duplicates++
				log.Debugf("%s: duplicate %s dropped", slug, id.CanonicalID)
				continue
			}
			return nil, &CollisionError{RefKey: key, First: prev, Second: id.CanonicalID}
		}
		seen[key] = id.CanonicalID

		out.Components = append(out.Components, model.Component{
			RefKey:      key,
			Kind:        model.KindLibrary,
			DisplayName: id.DisplayName,
			Version:     id.Version,
			CanonicalID: id.CanonicalID,
		})
	}

	out.Root = BuildRoot(repo, releaseTag)
	if prev, ok := seen[out.Root.RefKey]; ok {
		return nil, &CollisionError{RefKey: out.Root.RefKey, First: prev, Second: out.Root.CanonicalID}
	}

	log.Debugf("%s: %d records, %d components, %d excluded, %d malformed, %d duplicates",
		slug, out.Input, len(out.Components), out.Excluded, out.Malformed, out.Duplicates)
	return out, nil
}

// BuildRoot builds the component describing repo itself.
func BuildRoot(repo model.Repository, releaseTag *string) model.RootComponent {
	version := RootVersion(releaseTag)
	canonical := purlScheme + RootEcosystem + "/" + repo.Owner + "/" + repo.Name + "@" + version
	return model.RootComponent{
		RefKey:      RefKey(canonical),
		Kind:        model.KindApplication,
		Name:        repo.Slug(),
		Version:     version,
		CanonicalID: canonical,
	}
}
