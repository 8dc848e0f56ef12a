package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sym-studio/sym-go/internal/service"
)

var (
	genProvider string
	genModel    string
	genProject  string
	genUser     string
	genType     string
	genInput    string
	genWatch    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Submit a generation job",
	Long: `Submit a generation job to the server. The prompt argument becomes
input.prompt; use --input to pass a full JSON input object instead.

Examples:
  sym generate "a haiku about autumn" --provider gemini --model gemini-2.0-flash
  sym generate --provider replicate --model sdxl --input '{"prompt":"a cat","width":1024}'
  sym generate "a haiku" --watch    # follow the job until it finishes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genProvider, "provider", "gemini", "AI provider (gemini, replicate, bedrock)")
	generateCmd.Flags().StringVar(&genModel, "model", "", "model identifier (required)")
	generateCmd.Flags().StringVar(&genProject, "project", "", "project id")
	generateCmd.Flags().StringVar(&genUser, "user", "cli", "user id recorded as the job owner")
	generateCmd.Flags().StringVar(&genType, "type", "", "job type label")
	generateCmd.Flags().StringVar(&genInput, "input", "", "full JSON input object")
	generateCmd.Flags().BoolVar(&genWatch, "watch", false, "follow the job until it finishes")
	_ = generateCmd.MarkFlagRequired("model")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	input := map[string]any{}
	if genInput != "" {
		if err := json.Unmarshal([]byte(genInput), &input); err != nil {
			return fmt.Errorf("parse --input: %w", err)
		}
	}
	if len(args) == 1 {
		input["prompt"] = args[0]
	}
	if len(input) == 0 {
		return fmt.Errorf("either a prompt argument or --input is required")
	}

	ack, err := apiClient.Generate(ctx, service.GenerateRequest{
		ProjectID: genProject,
		UserID:    genUser,
		Type:      genType,
		Provider:  genProvider,
		Model:     genModel,
		Input:     input,
	})
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	fmt.Printf("Job %s accepted (%s)\n", ack.JobID, ack.Status)

	if genWatch {
		return RunJobProgress(apiClient, ack.JobID)
	}

	fmt.Printf("Use 'sym jobs %s' or 'sym watch %s' to follow it.\n", ack.JobID, ack.JobID)
	return nil
}
