/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded refinement runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tMODEL\tCHUNKS\tFAILED\tCOST\tSTARTED\tINPUT")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t$%.4f\t%s\t%s\n",
				r.ID, r.Status, r.Model, r.TotalChunks, r.Failed, r.TotalCost,
				r.CreatedAt.Format("2006-01-02 15:04"), r.InputFile)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		r, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		records, err := db.GetChunkResults(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("failed to load checkpoints: %w", err)
		}

		fmt.Printf("Run:          %s\n", r.ID)
		fmt.Printf("Status:       %s\n", r.Status)
		fmt.Printf("Provider:     %s\n", r.Provider)
		fmt.Printf("Model:        %s\n", r.Model)
		fmt.Printf("Input:        %s\n", r.InputFile)
		fmt.Printf("Output:       %s\n", r.OutputFile)
		fmt.Printf("Chunk limit:  %d tokens\n", r.MaxTokensPerChunk)
		fmt.Printf("Chunks:       %d total, %d succeeded, %d failed\n", r.TotalChunks, r.Succeeded, r.Failed)
		fmt.Printf("Checkpoints:  %d\n", len(records))
		fmt.Printf("Tokens:       %d input, %d output\n", r.InputTokens, r.OutputTokens)
		fmt.Printf("Cost:         $%.4f\n", r.TotalCost)
		fmt.Printf("Started:      %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated:      %s\n", r.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
