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

	"github.com/valpere/scanbook/internal/config"
	"github.com/valpere/scanbook/internal/logger"
)

var version = "0.3.0"

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scanbook",
	Short: "Turn OCR'd book text into a clean EPUB",
	Long: `A CLI application that proof-reads OCR'd book text with an LLM and
assembles the result into an EPUB.

The text is split into chunks that are corrected concurrently, with retries
on transient and rate-limit failures. Chunks that cannot be corrected keep
their original text. The corrected text is split into chapters and written
as an EPUB.

Supported providers: anthropic, openai, openrouter, ollama

Use "scanbook convert --help" for the full pipeline.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Init(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().String("db", "./data/scanbook.db", "Database path for runs and correction memory")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
}
