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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	refineInput  string
	refineOutput string
	resumeRun    string
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Proof-read OCR text with an LLM",
	Long: `Split the input text into chunks, correct them concurrently through the
configured provider and write the reassembled text.

Chunks that fail after all retries keep their original text and are listed
in the summary. Successful chunks are checkpointed, so an interrupted run
can be continued with --resume <run id>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if refineInput == refineOutput {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		text, err := readInput(refineInput)
		if err != nil {
			return err
		}

		p, cleanup, err := newPipeline(refineInput, refineOutput, resumeRun)
		if err != nil {
			return err
		}
		defer cleanup()

		pre, err := p.Estimate(text)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Chunks: %d, estimated input tokens: %d, estimated cost: $%.4f\n",
			pre.Chunks, pre.EstimatedInputTokens, pre.EstimatedCost)

		ctx, stop := signalContext()
		defer stop()

		report, err := p.Refine(ctx, text)
		if err != nil {
			return err
		}

		if err := writeOutput(refineOutput, report.Text); err != nil {
			return err
		}
		report.Summary(os.Stdout)
		fmt.Printf("Output:     %s\n", refineOutput)
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted; continue with --resume %s", report.RunID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refineCmd)

	refineCmd.Flags().StringVarP(&refineInput, "input", "i", "", "Input text file (required)")
	refineCmd.Flags().StringVarP(&refineOutput, "output", "o", "", "Output text file (required)")
	refineCmd.Flags().StringVar(&resumeRun, "resume", "", "Continue a previous run by ID")
	addCorrectionFlags(refineCmd)

	refineCmd.MarkFlagRequired("input")
	refineCmd.MarkFlagRequired("output")
}
