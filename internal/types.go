package internal

import "time"

// RunRequest describes one refinement run as recorded in the store.
type RunRequest struct {
	ID                string    `json:"id"`
	InputFile         string    `json:"input_file"`
	OutputFile        string    `json:"output_file"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model"`
	MaxTokensPerChunk int       `json:"max_tokens_per_chunk"`
	Timestamp         time.Time `json:"timestamp"`
}
