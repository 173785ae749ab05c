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
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/scanbook/internal/epub"
	"github.com/valpere/scanbook/internal/logger"
	"github.com/valpere/scanbook/internal/structurer"
)

var (
	buildInput   string
	buildOutput  string
	bookTitle    string
	bookAuthor   string
	bookLanguage string
	frontMatter  string
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"structure"},
	Short:   "Build an EPUB from already corrected text",
	Long: `Split corrected text into chapters and write an EPUB.

A paragraph whose first line looks like "Chapter 3", "PART IV" or a short
all-capitals title starts a new chapter. Text before the first heading
becomes a front matter chapter. Without any heading the whole text is a
single chapter named after the book.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(buildInput)
		if err != nil {
			return err
		}

		meta := bookMetadata(buildInput)
		chapters := structurer.New(structurer.Options{
			FrontMatterTitle: frontMatter,
			Logger:           logger.Default(),
		}).Structure(text, meta.Title)

		if err := os.MkdirAll(filepath.Dir(buildOutput), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := epub.Write(buildOutput, chapters, meta); err != nil {
			return err
		}

		fmt.Printf("Wrote %d chapters to %s\n", len(chapters), buildOutput)
		return nil
	},
}

// bookMetadata fills unset metadata from the input file name.
func bookMetadata(inputFile string) epub.Metadata {
	title := bookTitle
	if title == "" {
		base := filepath.Base(inputFile)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	lang := bookLanguage
	if lang == "" {
		lang = cfg.Language
	}
	return epub.Metadata{
		Title:      title,
		Author:     bookAuthor,
		Identifier: "urn:uuid:" + uuid.NewString(),
		Language:   lang,
	}
}

func addBookFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&bookTitle, "title", "", "Book title (defaults to the input file name)")
	cmd.Flags().StringVar(&bookAuthor, "author", "Unknown", "Book author")
	cmd.Flags().StringVar(&bookLanguage, "book-language", "", "EPUB language code (defaults to --language or en)")
	cmd.Flags().StringVar(&frontMatter, "front-matter-title", structurer.DefaultFrontMatterTitle, "Title of the chapter holding text before the first heading")
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildInput, "input", "i", "", "Corrected text file (required)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output EPUB file (required)")
	addBookFlags(buildCmd)

	buildCmd.MarkFlagRequired("input")
	buildCmd.MarkFlagRequired("output")
}
