// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE []byte

// ValidateWithCue checks YAML config bytes against the embedded #Config schema.
func ValidateWithCue(yamlBytes []byte) error {
	ctx := cuecontext.New()

	var configData map[string]any
	if err := yaml.Unmarshal(yamlBytes, &configData); err != nil {
		return fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	configVal := ctx.Encode(configData)
	if configVal.Err() != nil {
		return fmt.Errorf("cannot encode config for CUE: %w", configVal.Err())
	}

	schemaVal := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))

	final := def.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
