package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackycchen/api-mock-platform/pkg/cli/internal/output"
	"github.com/jackycchen/api-mock-platform/pkg/config"
)

// errInvalidConfig is returned after the validation report has been printed.
var errInvalidConfig = errors.New("config is invalid")

// ValidateOutput is the --json shape of the validate command.
type ValidateOutput struct {
	Config string              `json:"config"`
	Valid  bool                `json:"valid"`
	Errors []config.FieldError `json:"errors"`
	Rules  int                 `json:"rules"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file without starting the server",
	Long: `Validate an apimock config file without starting the server.

This command checks:
  - YAML syntax and ${VAR} expansion
  - Schema validation (known keys, value types, duration strings)
  - Rules (mode, path pattern, target URL, one pattern per project)
  - Definition files and OpenAPI documents named by the config`,
	Example: `  # Validate apimock.yaml in the current directory
  apimock validate

  # Validate a specific file and print JSON
  apimock validate -c deploy/apimock.yaml --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runValidate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	cfg, path, err := loadConfig(configFile)
	var result *config.ValidationResult
	if err == nil {
		result = checkConfig(cfg)
	} else {
		schemaErrs, ok := asValidation(err)
		if !ok {
			return err
		}
		result = schemaErrs
	}

	out := ValidateOutput{
		Config: path,
		Valid:  result.IsValid(),
		Errors: result.Errors,
	}
	if cfg != nil {
		out.Rules = len(cfg.Rules)
	}
	if out.Errors == nil {
		out.Errors = []config.FieldError{}
	}

	if jsonOutput {
		if err := output.JSON(w, out); err != nil {
			return err
		}
	} else {
		printValidation(cmd, path, out)
	}

	if !out.Valid {
		return errInvalidConfig
	}
	return nil
}

func printValidation(cmd *cobra.Command, path string, out ValidateOutput) {
	w := cmd.OutOrStdout()
	if out.Valid {
		fmt.Fprintf(w, "Config %s is valid (%d rules)\n", describe(path), out.Rules)
		return
	}

	fmt.Fprintf(w, "Config %s has %d error(s):\n\n", describe(path), len(out.Errors))
	tw := output.Table(w)
	fmt.Fprintln(tw, "PATH\tERROR")
	for _, e := range out.Errors {
		p := e.Path
		if p == "" {
			p = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\n", p, e.Message)
	}
	_ = tw.Flush()
}
