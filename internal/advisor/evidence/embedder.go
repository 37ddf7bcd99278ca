package evidence

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"krishmitra-advisor/internal/common/llm"
)

// Embedder turns text into a vector in the index space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder projects token unigrams and bigrams into a fixed number of buckets with
// signed feature hashing and L2 normalises the result. It needs no model and is deterministic.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	terms := tokenize(text)
	for i, t := range terms {
		h.add(vec, t, 1)
		if i > 0 {
			h.add(vec, terms[i-1]+"_"+t, 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	bucket := int(sum % uint64(h.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

// LLMEmbedder delegates to an OpenAI compatible embeddings endpoint.
type LLMEmbedder struct {
	client *llm.Client
	dims   int
}

func NewLLMEmbedder(client *llm.Client, dims int) *LLMEmbedder {
	return &LLMEmbedder{client: client, dims: dims}
}

func (e *LLMEmbedder) Dimensions() int { return e.dims }

func (e *LLMEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if e.dims > 0 && len(vecs[0]) != e.dims {
		return nil, fmt.Errorf("embedding has %d dimensions, index expects %d", len(vecs[0]), e.dims)
	}
	return vecs[0], nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
