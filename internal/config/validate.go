// CUE schema validation code
package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// SchemaDefinition is the CUE definition a config document must satisfy.
const SchemaDefinition = "#Config"

// Validate checks a YAML document against a CUE schema holding SchemaDefinition.
func Validate(name string, yamlBytes, schemaBytes []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaBytes)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile CUE schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath(SchemaDefinition))
	if !def.Exists() {
		return fmt.Errorf("CUE schema has no %s definition", SchemaDefinition)
	}

	file, err := cueyaml.Extract(name, yamlBytes)
	if err != nil {
		return fmt.Errorf("parse YAML config: %w", err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build YAML config: %w", err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
