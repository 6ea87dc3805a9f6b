package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jackycchen/api-mock-platform/pkg/config"
)

// loadConfig loads path, or apimock.yaml from the working directory when
// path is empty. Without either file the defaults are used and the
// returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	if path == "" {
		cfg, err := config.LoadDefault()
		if err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// checkConfig runs semantic validation and loads the definition sources,
// returning every problem found.
func checkConfig(cfg *config.Config) *config.ValidationResult {
	result := config.Validate(cfg)
	if !result.IsValid() {
		return result
	}
	defs, err := config.LoadDefinitions(cfg)
	if err != nil {
		result.AddError("definitions", err.Error())
		return result
	}
	if err := newCatalog(cfg).Replace(defs); err != nil {
		result.AddError("definitions", err.Error())
	}
	return result
}

// asValidation extracts schema errors from a load failure.
func asValidation(err error) (*config.ValidationResult, bool) {
	var res *config.ValidationResult
	if errors.As(err, &res) {
		return res, true
	}
	return nil, false
}

func describe(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return fmt.Sprintf("%q", path)
}
