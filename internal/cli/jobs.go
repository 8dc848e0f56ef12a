package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsUser string

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect generation jobs",
	Long: `List your generation jobs or inspect a specific job by id.

Examples:
  sym jobs                 # List recent jobs for --user
  sym jobs abc123          # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsUser, "user", "cli", "user id whose jobs to list")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx, jobsUser, 0)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-10s %-12s %-24s %s\n", "ID", "PROVIDER", "STATUS", "MODEL", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------------------")

	for _, job := range jobs {
		fmt.Printf("%-38s %-10s %-12s %-24s %s\n",
			job.ID, job.Provider, job.Status, job.Model, job.CreatedAt.Format("15:04:05"))
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Provider: %s\n", job.Provider)
	fmt.Printf("  Model: %s\n", job.Model)
	fmt.Printf("  Status: %s\n", job.Status)
	if job.ProjectID != "" {
		fmt.Printf("  Project: %s\n", job.ProjectID)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %dms\n", job.Duration)
	}

	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error: %s\n", *job.Error)
	}

	if job.Output != nil {
		pretty, err := json.MarshalIndent(job.Output, "  ", "  ")
		if err != nil {
			return fmt.Errorf("format output: %w", err)
		}
		fmt.Printf("\nOutput:\n  %s\n", pretty)
	}
	return nil
}
