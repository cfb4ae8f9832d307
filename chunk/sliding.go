package chunk

import (
	"context"
	"strings"
)

// SlidingWindow splits text into fixed-size byte windows extended by
// overlap bytes on both sides. Window edges snap outward to UTF-8 rune
// boundaries so no chunk ever splits a character.
type SlidingWindow struct {
	Size    int
	Overlap int
}

// NewSlidingWindow returns a sliding window with the given size and
// overlap in bytes.
func NewSlidingWindow(size, overlap int) *SlidingWindow {
	return &SlidingWindow{Size: size, Overlap: overlap}
}

// Chunk splits the trimmed input into overlapping windows. Empty input
// yields no chunks, input shorter than size+overlap is returned whole.
func (w *SlidingWindow) Chunk(_ context.Context, input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return []string{}, nil
	}
	if len(input) <= w.Size+w.Overlap {
		return []string{input}, nil
	}

	chunks := []string{}
	start, end := 0, w.Size

	for {
		chunkStart := start
		if chunkStart > 0 {
			chunkStart = start - w.Overlap
		}
		chunkEnd := end + w.Overlap

		for chunkStart > 0 && !isCharBoundary(input, chunkStart) {
			chunkStart--
		}
		for chunkEnd < len(input) && !isCharBoundary(input, chunkEnd) {
			chunkEnd++
		}

		if chunkEnd > len(input) {
			chunks = append(chunks, input[chunkStart:])
			break
		}

		chunks = append(chunks, input[chunkStart:chunkEnd])
		start = end
		end += w.Size
	}

	return chunks, nil
}
