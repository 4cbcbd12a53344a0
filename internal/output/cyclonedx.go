// Package output renders assembled documents as CycloneDX JSON and
// delivers them to disk, stdout or an S3-compatible bucket.
package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/StinkyLord/gh-sbom-export/internal/model"
	"github.com/StinkyLord/gh-sbom-export/internal/version"
)

// Fixed header values of every emitted document.
const (
	BOMFormat   = "CycloneDX"
	SpecVersion = "1.4"

	// TimestampLayout is RFC 3339 with a numeric offset, so UTC is written
	// as "+00:00" rather than "Z".
	TimestampLayout = "2006-01-02T15:04:05-07:00"
)

// ---- CycloneDX 1.4 JSON schema types ----

type cdxBOM struct {
	BOMFormat    string         `json:"bomFormat"`
	SpecVersion  string         `json:"specVersion"`
	SerialNumber string         `json:"serialNumber,omitempty"`
	Version      int            `json:"version"`
	Metadata     cdxMetadata    `json:"metadata"`
	Components   []cdxComponent `json:"components"`
}

type cdxMetadata struct {
	Timestamp string       `json:"timestamp"`
	Tools     []cdxTool    `json:"tools,omitempty"`
	Component cdxComponent `json:"component"`
}

type cdxTool struct {
	Vendor  string `json:"vendor,omitempty"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type cdxComponent struct {
	BOMRef  string `json:"bom-ref"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version"`
	PURL    string `json:"purl"`
}

// NewDocument wraps an assembled root and component list into a Document
// stamped with now and a fresh serial number.
func NewDocument(root model.RootComponent, components []model.Component, now time.Time) model.Document {
	return model.Document{
		Format:          BOMFormat,
		SpecVersion:     SpecVersion,
		DocumentVersion: 1,
		SerialNumber:    "urn:uuid:" + uuid.NewString(),
		GeneratedAt:     now,
		ToolName:        version.Toolname,
		ToolVersion:     version.Version,
		Root:            root,
		Components:      components,
	}
}

// Render serialises doc as indented CycloneDX JSON and validates the result
// against the embedded schema.
func Render(doc model.Document) ([]byte, error) {
	data, err := json.MarshalIndent(buildCycloneDX(doc), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal CycloneDX JSON: %w", err)
	}
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func buildCycloneDX(doc model.Document) cdxBOM {
	comps := make([]cdxComponent, 0, len(doc.Components))
	for _, c := range doc.Components {
		comps = append(comps, cdxComponent{
			BOMRef:  c.RefKey,
			Type:    c.Kind,
			Name:    c.DisplayName,
			Version: c.Version,
			PURL:    c.CanonicalID,
		})
	}

	var tools []cdxTool
	if doc.ToolName != "" {
		tools = []cdxTool{{Vendor: version.Vendor, Name: doc.ToolName, Version: doc.ToolVersion}}
	}

	return cdxBOM{
		BOMFormat:    doc.Format,
		SpecVersion:  doc.SpecVersion,
		SerialNumber: doc.SerialNumber,
		Version:      doc.DocumentVersion,
		Metadata: cdxMetadata{
			Timestamp: doc.GeneratedAt.UTC().Format(TimestampLayout),
			Tools:     tools,
			Component: cdxComponent{
				BOMRef:  doc.Root.RefKey,
				Type:    doc.Root.Kind,
				Name:    doc.Root.Name,
				Version: doc.Root.Version,
				PURL:    doc.Root.CanonicalID,
			},
		},
		Components: comps,
	}
}
