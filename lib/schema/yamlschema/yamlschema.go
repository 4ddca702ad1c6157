// Package yamlschema declares record types from a YAML document, so that
// tools can (de)serialize streams of types that have no Go struct.
//
// Example document:
//
//	types:
//	  - name: Point
//	    fields:
//	      - {name: x, type: int32}
//	      - {name: y, type: int32}
//	  - name: Shape
//	    fields:
//	      - {name: origin, type: Point}
//	      - {name: tags, type: "[]string"}
package yamlschema

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/dSync/lib/schema"
	"gopkg.in/yaml.v3"
)

// Document is the YAML representation of a set of type declarations.
type Document struct {
	Types []TypeSpec `yaml:"types"`
}

// TypeSpec declares one record type.
type TypeSpec struct {
	Name   string      `yaml:"name"`
	Fields []FieldSpec `yaml:"fields"`
}

// FieldSpec declares one field. Type uses the notation of schema.ParseValueType.
type FieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load reads a YAML schema file and registers all declared types in reg.
func Load(path string, reg *schema.Registry) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Parse(b, reg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Parse decodes a YAML schema document and registers all declared types in reg.
func Parse(data []byte, reg *schema.Registry) error {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	types, err := doc.Build()
	if err != nil {
		return err
	}
	for _, t := range types {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Build converts the document into record type descriptors.
func (d Document) Build() ([]*schema.Type, error) {
	if len(d.Types) == 0 {
		return nil, fmt.Errorf("no types declared")
	}

	out := make([]*schema.Type, 0, len(d.Types))
	for _, ts := range d.Types {
		name := strings.TrimSpace(ts.Name)
		fields := make([]schema.FieldSpec, 0, len(ts.Fields))
		for _, fs := range ts.Fields {
			vt, err := schema.ParseValueType(fs.Type)
			if err != nil {
				return nil, fmt.Errorf("type %q field %q: %w", name, fs.Name, err)
			}
			if vt.IsNone() {
				return nil, fmt.Errorf("type %q field %q: missing type", name, fs.Name)
			}
			fields = append(fields, schema.FieldSpec{Name: strings.TrimSpace(fs.Name), Type: vt})
		}
		t, err := schema.DefineRecord(name, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
