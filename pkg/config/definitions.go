package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
)

// LoadDefinitions reads every definition source the config names: YAML
// files, OpenAPI documents and inline entries, in that order. Patterns
// resolve relative to the config file.
func LoadDefinitions(cfg *Config) ([]*apidef.Definition, error) {
	var defs []*apidef.Definition
	project := cfg.Definitions.Project

	files, err := expandAll(cfg, cfg.Definitions.Files)
	if err != nil {
		return nil, fmt.Errorf("definitions.files: %w", err)
	}
	for _, f := range files {
		loaded, err := apidef.LoadFile(f, project)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}

	docs, err := expandAll(cfg, cfg.Definitions.OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("definitions.openapi: %w", err)
	}
	for _, f := range docs {
		loaded, err := apidef.LoadOpenAPIFile(f, project)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}

	for _, d := range cfg.Definitions.Inline {
		if d == nil {
			continue
		}
		c := d.Clone()
		if c.ProjectID == "" {
			c.ProjectID = project
		}
		defs = append(defs, c)
	}
	return defs, nil
}

// SourceFiles lists the files the config depends on, for change detection.
func SourceFiles(cfg *Config) ([]string, error) {
	files, err := expandAll(cfg, cfg.Definitions.Files)
	if err != nil {
		return nil, err
	}
	docs, err := expandAll(cfg, cfg.Definitions.OpenAPI)
	if err != nil {
		return nil, err
	}
	return append(files, docs...), nil
}

func expandAll(cfg *Config, patterns []string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		matches, err := expandGlob(cfg.Resolve(pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// expandGlob returns the files matching pattern in lexical order. A pattern
// without glob characters must name an existing file; a glob may match
// nothing.
func expandGlob(pattern string) ([]string, error) {
	if !hasMeta(pattern) {
		if _, err := os.Stat(pattern); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, pattern)
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
	}
	slices.Sort(matches)
	return matches, nil
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
