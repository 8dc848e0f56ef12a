// Package cli provides the command-line interface for sym.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sym-studio/sym-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// API client shared by all commands.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sym",
	Short: "Async generative AI jobs",
	Long: `Sym submits generation jobs to a sym server and follows them to
completion. Jobs run asynchronously: submission returns a job id
immediately and results arrive over the realtime channel or by polling.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default SYM_SERVER_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
