package apidef

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of a definitions file.
type fileFormat struct {
	Project     string        `yaml:"project,omitempty"`
	Definitions []*Definition `yaml:"definitions"`
}

// LoadFile reads a YAML definitions file. The file is either a list of
// definitions or a mapping with "project" and "definitions" keys. projectID,
// when set, applies to definitions that name no project.
func LoadFile(path, projectID string) ([]*Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading definitions file: %w", err)
	}
	defs, err := ParseYAML(data, projectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseYAML parses definitions from YAML.
func ParseYAML(data []byte, projectID string) ([]*Definition, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var doc fileFormat
	if data[0] == '-' || data[0] == '[' {
		if err := yaml.Unmarshal(data, &doc.Definitions); err != nil {
			return nil, fmt.Errorf("parsing definitions: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}

	project := doc.Project
	if project == "" {
		project = projectID
	}

	out := make([]*Definition, 0, len(doc.Definitions))
	for i, d := range doc.Definitions {
		if d == nil {
			continue
		}
		if d.ProjectID == "" {
			d.ProjectID = project
		}
		d.Normalize()
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("definitions[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadOpenAPI imports every operation of an OpenAPI 3 document (JSON or
// YAML) as a definition. Only paths, methods and summaries are used.
func LoadOpenAPI(data []byte, projectID string) ([]*Definition, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if doc.Paths == nil {
		return nil, nil
	}

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	slices.Sort(keys)

	var defs []*Definition
	for _, p := range keys {
		item := paths[p]
		if item == nil {
			continue
		}
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		slices.Sort(methods)

		for _, m := range methods {
			op := ops[m]
			d := &Definition{
				ProjectID: projectID,
				Path:      p,
				Method:    strings.ToUpper(m),
			}
			if op != nil {
				d.ID = op.OperationID
				d.Name = op.Summary
				d.Description = op.Description
			}
			d.Normalize()
			if err := d.Validate(); err != nil {
				return nil, fmt.Errorf("%s %s: %w", m, p, err)
			}
			defs = append(defs, d)
		}
	}
	return defs, nil
}

// LoadOpenAPIFile reads and imports an OpenAPI document from disk.
func LoadOpenAPIFile(path, projectID string) ([]*Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading OpenAPI document: %w", err)
	}
	defs, err := LoadOpenAPI(data, projectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}
