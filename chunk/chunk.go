package chunk

import (
	"context"
	"unicode/utf8"

	"github.com/yaoapp/duan/errs"
)

// Chunkers intended for human text use '.' unless configured otherwise.
const DefaultDelimiter = "."

// Default skips for the snapping and semantic windows.
var (
	// Patterns that follow a delimiter without ending a sentence,
	// common URL suffixes, acronym tails and file extensions.
	DefaultSkipForward = []string{"com", "org", "net", "g.", "e.", "sh", "rs", "js", "json"}

	// Patterns that precede a delimiter without ending a sentence.
	DefaultSkipBack = []string{"www", "etc", "e.g", "i.e"}
)

// Chunker splits normalized document text into windows. Every returned
// chunk is a valid UTF-8 string and the output is deterministic for a
// given input and configuration.
type Chunker interface {
	Chunk(ctx context.Context, input string) ([]string, error)
}

// Embedder is the capability the semantic window needs from an embedding
// provider. It is satisfied by embed.Embedder.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float64, error)
}

// Config is the persisted chunker configuration. Exactly one of the
// fields is set; the field name doubles as the chunker tag in JSON.
type Config struct {
	Sliding  *SlidingConfig  `json:"sliding,omitempty"`
	Snapping *SnappingConfig `json:"snapping,omitempty"`
	Semantic *SemanticConfig `json:"semantic,omitempty"`
}

// SlidingConfig configures the sliding window.
type SlidingConfig struct {
	Size    int `json:"size"`
	Overlap int `json:"overlap"`
}

// SnappingConfig configures the snapping window. Overlap counts whole
// sentences on each side of a chunk.
type SnappingConfig struct {
	Size        int      `json:"size"`
	Overlap     int      `json:"overlap"`
	Delimiter   string   `json:"delimiter"`
	SkipForward []string `json:"skipF"`
	SkipBack    []string `json:"skipB"`
}

// SemanticConfig configures the semantic window. Size is the probe width
// in characters. A probe further than Threshold from the running centroid
// of the current chunk starts a new one; for cosine the distance is
// 1 - cos, so a low threshold demands high similarity to keep merging.
type SemanticConfig struct {
	Size              int      `json:"size"`
	Threshold         float64  `json:"threshold"`
	DistanceFn        string   `json:"distanceFn"`
	Delimiter         string   `json:"delimiter"`
	SkipForward       []string `json:"skipF"`
	SkipBack          []string `json:"skipB"`
	EmbeddingProvider string   `json:"embeddingProvider"`
	EmbeddingModel    string   `json:"embeddingModel"`
}

// Distance functions for the semantic window.
const (
	DistanceCosine    = "cosine"
	DistanceEuclidean = "euclidean"
)

// DefaultSliding returns the sliding configuration used when a document
// has no chunker of its own.
func DefaultSliding() Config {
	return Config{Sliding: &SlidingConfig{Size: 1000, Overlap: 200}}
}

// DefaultSnapping returns the snapping configuration documents receive
// on upload.
func DefaultSnapping() Config {
	return Config{Snapping: &SnappingConfig{
		Size:        1000,
		Overlap:     5,
		Delimiter:   DefaultDelimiter,
		SkipForward: DefaultSkipForward,
		SkipBack:    DefaultSkipBack,
	}}
}

// DefaultSemantic returns a semantic configuration bound to the given
// embedding provider and model.
func DefaultSemantic(provider, model string) Config {
	return Config{Semantic: &SemanticConfig{
		Size:              200,
		Threshold:         0.1,
		DistanceFn:        DistanceCosine,
		Delimiter:         DefaultDelimiter,
		SkipForward:       DefaultSkipForward,
		SkipBack:          DefaultSkipBack,
		EmbeddingProvider: provider,
		EmbeddingModel:    model,
	}}
}

// Name returns the configured chunker's display name.
func (c Config) Name() string {
	switch {
	case c.Sliding != nil:
		return "SlidingWindow"
	case c.Snapping != nil:
		return "SnappingWindow"
	case c.Semantic != nil:
		return "SemanticWindow"
	}
	return ""
}

// Validate checks that exactly one chunker is configured and that its
// parameters are usable.
func (c Config) Validate() error {
	set := 0
	if c.Sliding != nil {
		set++
	}
	if c.Snapping != nil {
		set++
	}
	if c.Semantic != nil {
		set++
	}
	if set != 1 {
		return errs.New(errs.Validation, "chunk config must set exactly one of sliding, snapping, semantic")
	}

	switch {
	case c.Sliding != nil:
		if c.Sliding.Size < 1 {
			return errs.New(errs.Chunk, "sliding window size must be at least 1")
		}
		if c.Sliding.Overlap > c.Sliding.Size {
			return errs.New(errs.Chunk, "sliding window overlap (%d) larger than size (%d)", c.Sliding.Overlap, c.Sliding.Size)
		}
	case c.Snapping != nil:
		if c.Snapping.Size < 1 {
			return errs.New(errs.Chunk, "snapping window size must be at least 1")
		}
		if c.Snapping.Overlap < 0 {
			return errs.New(errs.Chunk, "snapping window overlap must not be negative")
		}
		if _, err := delimiterRune(c.Snapping.Delimiter); err != nil {
			return err
		}
	case c.Semantic != nil:
		if c.Semantic.Size < 1 {
			return errs.New(errs.Chunk, "semantic window probe size must be at least 1")
		}
		if c.Semantic.Threshold < 0 {
			return errs.New(errs.Chunk, "semantic window threshold must not be negative")
		}
		if c.Semantic.DistanceFn == DistanceCosine && c.Semantic.Threshold > 1 {
			return errs.New(errs.Chunk, "cosine threshold must be within [0, 1]")
		}
		if c.Semantic.DistanceFn != DistanceCosine && c.Semantic.DistanceFn != DistanceEuclidean {
			return errs.New(errs.Chunk, "unknown distance function %q", c.Semantic.DistanceFn)
		}
		if c.Semantic.EmbeddingProvider == "" || c.Semantic.EmbeddingModel == "" {
			return errs.New(errs.Chunk, "semantic window requires an embedding provider and model")
		}
	}

	return nil
}

// Build constructs the configured chunker. The embedder is only used by
// the semantic window and may be nil for the other two.
func (c Config) Build(embedder Embedder) (Chunker, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.Sliding != nil:
		return &SlidingWindow{Size: c.Sliding.Size, Overlap: c.Sliding.Overlap}, nil
	case c.Snapping != nil:
		return newSnappingWindow(*c.Snapping)
	default:
		if embedder == nil {
			return nil, errs.New(errs.InvalidProvider, "semantic window requires embedder %q", c.Semantic.EmbeddingProvider)
		}
		return newSemanticWindow(*c.Semantic, embedder)
	}
}

func delimiterRune(s string) (rune, error) {
	if s == "" {
		return rune(DefaultDelimiter[0]), nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError {
		return 0, errs.New(errs.Chunk, "delimiter must be a single character, got %q", s)
	}
	return r, nil
}

// isCharBoundary reports whether i sits on a UTF-8 rune boundary of s,
// mirroring the windowing arithmetic which operates on bytes.
func isCharBoundary(s string, i int) bool {
	if i <= 0 || i >= len(s) {
		return true
	}
	return utf8.RuneStart(s[i])
}
