package chunk

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SnappingWindow accumulates whole sentences until a chunk reaches its
// byte size, then snaps the cut to the sentence delimiter. Each chunk is
// extended with up to Overlap full sentences on both sides, so search
// results keep their surrounding context.
type SnappingWindow struct {
	Size        int
	Overlap     int
	SkipForward []string
	SkipBack    []string

	delim rune
}

func newSnappingWindow(cfg SnappingConfig) (*SnappingWindow, error) {
	delim, err := delimiterRune(cfg.Delimiter)
	if err != nil {
		return nil, err
	}
	return &SnappingWindow{
		Size:        cfg.Size,
		Overlap:     cfg.Overlap,
		SkipForward: cfg.SkipForward,
		SkipBack:    cfg.SkipBack,
		delim:       delim,
	}, nil
}

// NewSnappingWindow returns a snapping window with the default delimiter
// and skip patterns.
func NewSnappingWindow(size, overlap int) *SnappingWindow {
	return &SnappingWindow{
		Size:        size,
		Overlap:     overlap,
		SkipForward: append([]string{}, DefaultSkipForward...),
		SkipBack:    append([]string{}, DefaultSkipBack...),
		delim:       rune(DefaultDelimiter[0]),
	}
}

// ExtendSkips adds patterns to the forward and backward skip lists.
func (w *SnappingWindow) ExtendSkips(forward, back []string) {
	w.SkipForward = append(w.SkipForward, forward...)
	w.SkipBack = append(w.SkipBack, back...)
}

// Chunk splits the trimmed input at sentence stops. A delimiter only
// stops a sentence when the accumulated chunk is full, it is followed by
// whitespace and neither side matches a skip pattern.
func (w *SnappingWindow) Chunk(_ context.Context, input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return []string{}, nil
	}

	delim := w.delim
	if delim == 0 {
		delim = rune(DefaultDelimiter[0])
	}

	total := len(input)
	chunks := []string{}
	chunkStart := 0
	offset := 0

	for offset < total {
		ch, size := utf8.DecodeRuneInString(input[offset:])
		offset += size

		// Whatever remains at the end of the input forms the last
		// chunk regardless of size.
		if offset == total {
			prev := previousChunk(input[:chunkStart], w.Overlap, delim, w.SkipForward, w.SkipBack)
			chunks = append(chunks, prev+input[chunkStart:])
			break
		}

		if ch != delim {
			continue
		}
		if offset-size-chunkStart < w.Size {
			continue
		}

		if w.skipsBack(input[chunkStart : offset-size]) {
			continue
		}

		// A stop must be followed by whitespace, otherwise the
		// delimiter is part of a token such as a version string.
		next, _ := utf8.DecodeRuneInString(input[offset:])
		if !unicode.IsSpace(next) {
			continue
		}

		if w.skipsForward(input[offset:]) {
			continue
		}

		prev := previousChunk(input[:chunkStart], w.Overlap, delim, w.SkipForward, w.SkipBack)
		tail, tailOffset := nextChunk(input[offset:], w.Overlap, delim, w.SkipForward, w.SkipBack)

		if offset+tailOffset == total-1 {
			chunks = append(chunks, prev+input[chunkStart:offset]+tail)
			break
		}

		chunks = append(chunks, prev+input[chunkStart:offset]+tail)

		// Skip past the forward overlap so its sentences are not
		// chunked again.
		offset += tailOffset
		chunkStart = offset
	}

	return chunks, nil
}

func (w *SnappingWindow) skipsBack(chunk string) bool {
	for _, pat := range w.SkipBack {
		if strings.HasSuffix(chunk, pat) {
			return true
		}
	}
	return false
}

func (w *SnappingWindow) skipsForward(rest string) bool {
	for _, pat := range w.SkipForward {
		if strings.HasPrefix(rest, pat) {
			return true
		}
	}
	return false
}

// previousChunk returns up to overlap full sentences from the back of
// input, stops that match a skip pattern not counting as sentence ends.
func previousChunk(input string, overlap int, delim rune, skipForward, skipBack []string) string {
	c := newCursorRev(input, delim)
	for i := 0; i < overlap; i++ {
		c.advance()
		for c.advanceIfPeek(skipForward, skipBack) {
			c.advance()
		}
	}
	return c.slice()
}

// nextChunk returns up to overlap full sentences from the front of input
// along with the byte offset they end at.
func nextChunk(input string, overlap int, delim rune, skipForward, skipBack []string) (string, int) {
	c := newCursor(input, delim)
	for i := 0; i < overlap; i++ {
		c.advance()
		for c.advanceIfPeek(skipForward, skipBack) {
			c.advance()
		}
	}
	return c.slice(), c.byteOffset
}
