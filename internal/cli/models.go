package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := apiClient.ListModels(context.Background())
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}

		if len(models) == 0 {
			fmt.Println("No models available")
			return nil
		}

		fmt.Printf("%-12s %-24s %s\n", "PROVIDER", "ID", "MODEL")
		fmt.Println("------------------------------------------------------------------------")
		for _, m := range models {
			fmt.Printf("%-12s %-24s %s\n", m.Provider, m.ID, m.Model)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
