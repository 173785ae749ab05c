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
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	convertInput      string
	convertOutput     string
	convertTextOutput string
	convertResume     string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Proof-read OCR text and build an EPUB in one step",
	Long: `Run the full pipeline: chunk the input, correct every chunk through the
configured provider, reassemble the text, split it into chapters and write
an EPUB.

Use --text-output to keep the corrected text as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(convertInput)
		if err != nil {
			return err
		}

		p, cleanup, err := newPipeline(convertInput, convertOutput, convertResume)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := os.MkdirAll(filepath.Dir(convertOutput), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		ctx, stop := signalContext()
		defer stop()

		report, err := p.Convert(ctx, text, convertOutput, bookMetadata(convertInput))
		if report != nil && convertTextOutput != "" {
			if werr := writeOutput(convertTextOutput, report.Text); werr != nil {
				return werr
			}
		}
		if err != nil {
			if report != nil && ctx.Err() != nil {
				report.Summary(os.Stdout)
				return fmt.Errorf("interrupted; continue with --resume %s", report.RunID)
			}
			return err
		}

		report.Summary(os.Stdout)
		fmt.Printf("Output:     %s\n", convertOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "", "Input text file (required)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output EPUB file (required)")
	convertCmd.Flags().StringVar(&convertTextOutput, "text-output", "", "Also write the corrected text to this file")
	convertCmd.Flags().StringVar(&convertResume, "resume", "", "Continue a previous run by ID")
	addCorrectionFlags(convertCmd)
	addBookFlags(convertCmd)

	convertCmd.MarkFlagRequired("input")
	convertCmd.MarkFlagRequired("output")
}
