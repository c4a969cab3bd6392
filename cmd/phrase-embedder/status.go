package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MereWhiplash/phrase-embedder/internal/client"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

var statusAPIURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show embedding coverage for a model",
	Long: `Show how many active phrases have an embedding for a model.

With --api-url the numbers come from a running "phrase-embedder api" server
instead of the database.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAPIURL, "api-url", "", "Query a running API server instead of storage")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// An API server reports on its own model unless one is named explicitly
	var model string
	if cmd.Flags().Changed("model") {
		model = globalConfig.Model
	}

	if statusAPIURL != "" {
		resp, err := client.New(statusAPIURL).Status(ctx, model)
		if err != nil {
			return fmt.Errorf("failed to query API: %w", err)
		}
		printStatus(out, resp.Status)
		if resp.ActiveRun != nil {
			fmt.Fprintf(out, "Run %s in progress: %d batches, %d phrases so far.\n",
				resp.ActiveRun.ID, resp.ActiveRun.Batches, resp.ActiveRun.Phrases)
		}
		return nil
	}

	svc, err := openService(ctx, globalConfig)
	if err != nil {
		return err
	}
	defer svc.Close()

	st, err := svc.Status(ctx, model)
	if err != nil {
		return err
	}
	printStatus(out, st)
	return nil
}

func printStatus(w io.Writer, st *types.Status) {
	fmt.Fprintf(w, "Model:     %s\n", st.Model)
	fmt.Fprintf(w, "Active:    %d\n", st.ActivePhrases)
	fmt.Fprintf(w, "Embedded:  %d\n", st.Embedded)
	fmt.Fprintf(w, "Pending:   %d\n", st.Pending)
}
