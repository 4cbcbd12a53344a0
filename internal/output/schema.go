package output

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const bomSchemaName = "bom-1.4.schema.json"

//go:embed schema/bom-1.4.schema.json
var bomSchema []byte

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func documentSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		comp := jsonschema.NewCompiler()
		comp.AssertFormat = true
		if err := comp.AddResource(bomSchemaName, bytes.NewReader(bomSchema)); err != nil {
			compileErr = fmt.Errorf("loading schema %q: %w", bomSchemaName, err)
			return
		}
		compiled, compileErr = comp.Compile(bomSchemaName)
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema %q: %w", bomSchemaName, compileErr)
		}
	})
	return compiled, compileErr
}

// ValidateDocument checks rendered CycloneDX JSON against the embedded
// CycloneDX 1.4 schema subset this tool emits.
func ValidateDocument(data []byte) error {
	sch, err := documentSchema()
	if err != nil {
		return err
	}

	// unmarshal into interface{} so the validator can walk it
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON for %q: %w", bomSchemaName, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation against %q failed: %w", bomSchemaName, err)
	}
	return nil
}
