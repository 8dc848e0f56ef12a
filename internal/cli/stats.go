package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sym-studio/sym-go/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long:  `Show in-memory server statistics. Counters reset on server restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := apiClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Uptime: %.0fs\n", snap.UptimeSeconds)

		if len(snap.Providers) > 0 {
			fmt.Println("\nProviders:")
			names := make([]string, 0, len(snap.Providers))
			for name := range snap.Providers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				printOp(name, snap.Providers[name])
			}
		}
		if snap.QueueDispatch != nil {
			fmt.Println("\nQueue:")
			printOp("dispatch", snap.QueueDispatch)
		}
		if snap.DBQuery != nil {
			fmt.Println("\nDatabase:")
			printOp("query", snap.DBQuery)
		}
		return nil
	},
}

func printOp(name string, op *metrics.OperationSnapshot) {
	fmt.Printf("  %-12s count=%d avg=%.0fms min=%dms max=%dms\n",
		name, op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalInputTokens != nil && op.TotalOutputTokens != nil {
		fmt.Printf("  %-12s tokens in=%d out=%d\n", "", *op.TotalInputTokens, *op.TotalOutputTokens)
	}
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
