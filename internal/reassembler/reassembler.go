// Package reassembler puts refined chunks back together in document order.
package reassembler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/valpere/scanbook/internal/chunker"
	"github.com/valpere/scanbook/internal/dispatcher"
)

var (
	ErrDuplicateResult = errors.New("duplicate result for chunk")
	ErrUnknownChunk    = errors.New("result for unknown chunk")
)

// Output is the reassembled document. FailedChunkIndices lists, in
// ascending order, the chunks whose original text was used instead of a
// correction.
type Output struct {
	Text               string
	FailedChunkIndices []int
}

// FallbackUsed reports whether any chunk kept its original text.
func (o Output) FallbackUsed() bool {
	return len(o.FailedChunkIndices) > 0
}

// Reassemble joins chunks in ascending index order. A chunk with a
// successful result contributes its corrected text; a failed or missing
// result falls back to the chunk's original text. Each chunk is preceded by
// its Glue, so with every chunk failed the output equals chunker.Join.
// results may be in any order.
func Reassemble(chunks []chunker.Chunk, results []dispatcher.Result) (Output, error) {
	known := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		known[c.Index] = true
	}

	byIndex := make(map[int]dispatcher.Result, len(results))
	for _, r := range results {
		if !known[r.ChunkIndex] {
			return Output{}, fmt.Errorf("%w: %d", ErrUnknownChunk, r.ChunkIndex)
		}
		if _, dup := byIndex[r.ChunkIndex]; dup {
			return Output{}, fmt.Errorf("%w: %d", ErrDuplicateResult, r.ChunkIndex)
		}
		byIndex[r.ChunkIndex] = r
	}

	ordered := slices.Clone(chunks)
	slices.SortFunc(ordered, func(a, b chunker.Chunk) int { return a.Index - b.Index })

	var out Output
	var sb strings.Builder
	for i, c := range ordered {
		if i > 0 {
			sb.WriteString(c.Glue)
		}
		r, ok := byIndex[c.Index]
		if ok && r.Status == dispatcher.Success {
			sb.WriteString(r.CorrectedText)
			continue
		}
		sb.WriteString(c.Text)
		out.FailedChunkIndices = append(out.FailedChunkIndices, c.Index)
	}
	out.Text = sb.String()
	return out, nil
}
