package policy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// schemaCUE constrains CUE policy files. #Policy is closed, so unknown
// fields are rejected the same way the YAML decoder rejects them.
const schemaCUE = `
#Policy: {
	hidden_categories: [...string] | *[]
	reserved_prefix:   string | *""
}
`

// Load reads a policy file. The format is chosen by extension:
// .cue for CUE, .yaml or .yml for YAML.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var p Policy
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		p, err = ParseCUE(path, data)
	case ".yaml", ".yml":
		p, err = ParseYAML(data)
	default:
		return Policy{}, fmt.Errorf("policy file %s: unsupported extension %q (want .cue, .yaml or .yml)", path, ext)
	}
	if err != nil {
		return Policy{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// ParseCUE compiles a CUE policy and validates it against the schema.
func ParseCUE(filename string, data []byte) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("policy-schema.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile CUE: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Policy{}, fmt.Errorf("validate CUE: %w", err)
	}

	var p Policy
	if err := unified.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("decode CUE: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// ParseYAML decodes a YAML policy, rejecting unknown fields.
func ParseYAML(data []byte) (Policy, error) {
	var p Policy
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("parse YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
