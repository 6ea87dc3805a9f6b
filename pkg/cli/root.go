package cli

import (
	"github.com/spf13/cobra"

	"github.com/jackycchen/api-mock-platform/pkg/config"
)

var (
	// Persistent flags available to all subcommands
	configFile string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apimock",
	Short: "apimock intercepts API calls and answers them with mocks or an upstream",
	Long: `apimock sits in front of an HTTP application. Requests under the mock
namespaces (/api/mock/, /mock/) that match a routing rule are answered with a
synthesized mock, forwarded to the rule's upstream, or both (AUTO mode).
Everything else reaches the management API.

Settings come from flags, APIMOCK_* environment variables, a .env file next
to the config file, and the config file itself (apimock.yaml by default).`,
	SilenceUsage:  true,
	SilenceErrors: true, // main prints the error
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}
