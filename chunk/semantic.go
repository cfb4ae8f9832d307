package chunk

import (
	"context"
	"math"
	"strings"

	"github.com/yaoapp/duan/errs"
)

// SemanticWindow groups fixed-width probes by embedding similarity.
// Probes are cut with a zero-overlap sliding window, embedded in one
// batch, then folded left to right: a probe joins the current chunk while
// its vector stays within Threshold of the chunk centroid, otherwise it
// starts a new chunk.
type SemanticWindow struct {
	cfg      SemanticConfig
	embedder Embedder
}

func newSemanticWindow(cfg SemanticConfig, embedder Embedder) (*SemanticWindow, error) {
	return &SemanticWindow{cfg: cfg, embedder: embedder}, nil
}

// Chunk embeds the input probes and groups them into topical chunks.
// Chunks never overlap and concatenate back to the trimmed input.
func (w *SemanticWindow) Chunk(ctx context.Context, input string) ([]string, error) {
	probes, err := NewSlidingWindow(w.cfg.Size, 0).Chunk(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return []string{}, nil
	}

	vectors, err := w.embedder.Embed(ctx, probes, w.cfg.EmbeddingModel)
	if err != nil {
		return nil, errs.Wrap(errs.Embedding, err)
	}
	if len(vectors) != len(probes) {
		return nil, errs.New(errs.Embedding, "embedder returned %d vectors for %d probes", len(vectors), len(probes))
	}

	chunks := []string{}
	var current []string
	var centroid []float64

	for i, probe := range probes {
		if probe == "" {
			continue
		}
		if len(current) == 0 {
			current = []string{probe}
			centroid = append([]float64(nil), vectors[i]...)
			continue
		}

		d, err := distance(w.cfg.DistanceFn, vectors[i], centroid)
		if err != nil {
			return nil, err
		}
		if d > w.cfg.Threshold {
			chunks = append(chunks, strings.Join(current, ""))
			current = []string{probe}
			centroid = append(centroid[:0], vectors[i]...)
			continue
		}

		current = append(current, probe)
		updateCentroid(centroid, vectors[i], len(current))
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}

	return chunks, nil
}

// updateCentroid folds vec into the running mean of a chunk that now
// holds n probes.
func updateCentroid(centroid, vec []float64, n int) {
	for i := range centroid {
		v := 0.0
		if i < len(vec) {
			v = vec[i]
		}
		centroid[i] = centroid[i]*float64(n-1)/float64(n) + v/float64(n)
	}
}

func distance(fn string, a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errs.New(errs.Embedding, "vector size mismatch, %d != %d", len(a), len(b))
	}
	switch fn {
	case DistanceCosine:
		return cosineDistance(a, b), nil
	case DistanceEuclidean:
		return euclideanDistance(a, b), nil
	}
	return 0, errs.New(errs.Chunk, "unknown distance function %q", fn)
}

func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
