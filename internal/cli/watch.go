package cli

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job until it finishes",
	Long: `Follow a running job with a live status display. Exits when the job
completes or fails; Ctrl+C detaches and leaves the job running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunJobProgress(apiClient, args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
