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

	"github.com/spf13/cobra"

	"github.com/valpere/scanbook/internal/pipeline"
)

var estimateInput string

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate chunks, tokens and cost without calling the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(estimateInput)
		if err != nil {
			return err
		}
		opts, err := pipelineOptions(estimateInput, "", "")
		if err != nil {
			return err
		}

		pre, err := pipeline.New(nil, opts).Estimate(text)
		if err != nil {
			return err
		}

		fmt.Printf("Model:             %s\n", pre.Model)
		fmt.Printf("Paragraphs:        %d\n", pre.Paragraphs)
		fmt.Printf("Chunks:            %d\n", pre.Chunks)
		fmt.Printf("Input tokens:      ~%d\n", pre.EstimatedInputTokens)
		fmt.Printf("Estimated cost:    $%.4f\n", pre.EstimatedCost)
		if cfg.MaxCostLimit > 0 {
			fmt.Printf("Cost limit:        $%.4f\n", cfg.MaxCostLimit)
			if pre.EstimatedCost > cfg.MaxCostLimit {
				fmt.Println("The estimate exceeds the limit; refine would abort.")
			}
		}
		for _, w := range pre.Warnings {
			fmt.Printf("Warning: %s\n", w.Error())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)

	estimateCmd.Flags().StringVarP(&estimateInput, "input", "i", "", "Input text file (required)")
	addCorrectionFlags(estimateCmd)

	estimateCmd.MarkFlagRequired("input")
}
