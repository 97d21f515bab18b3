package corpus

import (
	"math"
	"strings"

	"github.com/dimakogan/tiptoe-simplepir/pirerr"
)

// Embedder is the external collaborator boundary: anything that turns text
// into a real-valued vector of a fixed dimension. Corpus building and query
// routing both go through this interface so neither depends on a specific
// embedding model.
type Embedder interface {
	Embed(text string) ([]float64, error)
	Dim() int
}

// MockEmbedder is a deterministic one-hot keyword embedder: each dimension
// corresponds to one vocabulary term, and Embed sets the coordinates for
// every vocabulary word present in the input text. It exists so corpus
// building and the two-stage protocol can be exercised without a real
// embedding model, the same role the original clustering.py's
// EmbeddingCreator stand-in serves in tests.
type MockEmbedder struct {
	vocab map[string]int
}

// NewMockEmbedder builds an embedder over the given vocabulary, in the
// order given (dimension i corresponds to vocab[i]).
func NewMockEmbedder(vocab []string) *MockEmbedder {
	m := make(map[string]int, len(vocab))
	for i, w := range vocab {
		m[strings.ToLower(w)] = i
	}
	return &MockEmbedder{vocab: m}
}

func (e *MockEmbedder) Dim() int { return len(e.vocab) }

// Vocab returns the embedder's vocabulary in dimension order, so a remote
// client can reconstruct an identical MockEmbedder from a server-supplied
// word list without sharing any other state.
func (e *MockEmbedder) Vocab() []string {
	out := make([]string, len(e.vocab))
	for w, i := range e.vocab {
		out[i] = w
	}
	return out
}

func (e *MockEmbedder) Embed(text string) ([]float64, error) {
	v := make([]float64, len(e.vocab))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if i, ok := e.vocab[w]; ok {
			v[i] = 1
		}
	}
	return v, nil
}

// VectorEmbedder wraps precomputed vectors (e.g. loaded from a JSON/CSV
// sidecar produced by an out-of-process embedding model), keyed by the
// exact document text passed to Embed.
type VectorEmbedder struct {
	dim  int
	vecs map[string][]float64
}

// NewVectorEmbedder builds an embedder over a fixed set of precomputed
// vectors; every vector must share dim, else an error records which entry
// disagreed.
func NewVectorEmbedder(dim int, vecs map[string][]float64) (*VectorEmbedder, error) {
	const op = "corpus.NewVectorEmbedder"
	for k, v := range vecs {
		if len(v) != dim {
			return nil, pirerr.New(pirerr.DimensionError, op, "vector for "+k+" has wrong dimension")
		}
	}
	return &VectorEmbedder{dim: dim, vecs: vecs}, nil
}

func (e *VectorEmbedder) Dim() int { return e.dim }

func (e *VectorEmbedder) Embed(text string) ([]float64, error) {
	const op = "corpus.VectorEmbedder.Embed"
	v, ok := e.vecs[text]
	if !ok {
		return nil, pirerr.New(pirerr.DecodeFailure, op, "no precomputed vector for text")
	}
	return v, nil
}

// Normalize L2-normalizes v in place's copy, matching clustering's
// normalized_embeddings step; a zero vector is returned unchanged since it
// has no direction to normalize toward.
func Normalize(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return append([]float64(nil), v...)
	}
	norm := math.Sqrt(sumSq)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
