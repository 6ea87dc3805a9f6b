package cli

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jackycchen/api-mock-platform/pkg/config"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

var (
	initOutput      string
	initForce       bool
	initInteractive bool
)

// starterAnswers fills the starter config template.
type starterAnswers struct {
	Project     string
	Name        string
	PathPattern string
	Mode        string
	TargetURL   string
}

func defaultStarterAnswers() starterAnswers {
	return starterAnswers{
		Project:     "demo",
		Name:        "users",
		PathPattern: "/mock/users/*",
		Mode:        "AUTO",
		TargetURL:   "https://api.example.com",
	}
}

var starterTemplate = template.Must(template.New("apimock.yaml").Parse(`# apimock configuration
server:
  port: 8080
  reloadInterval: "5s"

logging:
  level: info
  format: text

gate:
  namespaces: ["/api/mock/", "/mock/"]

callLog:
  backend: memory
  capacity: 1000
  retention: "168h"

definitions:
  project: {{ printf "%q" .Project }}
  inline:
    - name: Get user
      path: /users/{id}
      method: GET
    - name: Login
      path: /login
      method: POST

rules:
  - name: {{ printf "%q" .Name }}
    project: {{ printf "%q" .Project }}
    pathPattern: {{ printf "%q" .PathPattern }}
    mode: {{ .Mode }}
{{- if .TargetURL }}
    targetUrl: {{ printf "%q" .TargetURL }}
{{- end }}
`))

// renderStarter renders the template and checks that the result loads.
func renderStarter(a starterAnswers) ([]byte, error) {
	if _, err := rule.ParseMode(a.Mode); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := starterTemplate.Execute(&buf, a); err != nil {
		return nil, err
	}
	cfg, err := config.Parse(buf.Bytes())
	if err != nil {
		return nil, err
	}
	if res := config.Validate(cfg); !res.IsValid() {
		return nil, res
	}
	return buf.Bytes(), nil
}

func promptStarter(a *starterAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project ID").
				Value(&a.Project),
			huh.NewInput().
				Title("Rule name").
				Value(&a.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Path pattern to intercept").
				Placeholder("/mock/users/*").
				Value(&a.PathPattern).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "regex:") {
						return errors.New(`pattern must start with "/" or "regex:"`)
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("How should matched requests be answered?").
				Options(
					huh.NewOption("AUTO - mock when a definition exists, otherwise proxy", "AUTO"),
					huh.NewOption("MOCK - always synthesize a response", "MOCK"),
					huh.NewOption("PROXY - always forward upstream", "PROXY"),
				).
				Value(&a.Mode),
			huh.NewInput().
				Title("Upstream base URL (PROXY and AUTO)").
				Placeholder("https://api.example.com").
				Value(&a.TargetURL).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					u, err := url.Parse(s)
					if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
						return errors.New("must be an http or https URL")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if a.Mode == "MOCK" {
		a.TargetURL = ""
	}
	return nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter config file",
	Example: `  # Write apimock.yaml with one AUTO rule
  apimock init

  # Answer a few questions first
  apimock init --interactive -o deploy/apimock.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !initForce {
			if _, err := os.Stat(initOutput); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", initOutput)
			}
		}

		answers := defaultStarterAnswers()
		if initInteractive {
			if err := promptStarter(&answers); err != nil {
				return err
			}
		}

		data, err := renderStarter(answers)
		if err != nil {
			return fmt.Errorf("rendering starter config: %w", err)
		}
		if err := os.WriteFile(initOutput, data, 0o644); err != nil { //nolint:gosec // config files are meant to be readable
			return fmt.Errorf("writing %s: %w", initOutput, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n\nNext steps:\n  apimock validate -c %s\n  apimock serve -c %s\n", initOutput, initOutput, initOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initOutput, "output", "o", config.DefaultFile, "Output filename")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the first rule")
}
