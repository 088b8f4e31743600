// Package embed produces query and tool-description embeddings for
// semantic search. Tool embeddings are computed once at boot; only
// search queries are embedded at request time.
package embed

import (
	"context"
	"hash/fnv"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns text into a fixed-dimension vector. Implementations
// must return vectors of a stable dimension across calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder embeds text via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder builds an embedder for the given API key and model.
// An empty model selects text-embedding-3-small (1536 dimensions).
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIModel
	}
	dim := 1536
	if model == "text-embedding-3-large" {
		dim = 3072
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dim,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

type embedError string

func (e embedError) Error() string { return string(e) }

const errEmptyEmbedding = embedError("embedding response contained no vectors")

// LocalEmbedder is a deterministic offline embedder. It hashes token
// n-grams into a fixed-size vector and L2-normalizes the result, so
// identical text always maps to the same unit vector. Useful for tests
// and deployments without an embeddings API.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder builds a local embedder with the given dimension
// (256 if dim <= 0).
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	b := []byte(text)
	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(b); i++ {
			h := fnv.New32a()
			h.Write(b[i : i+n])
			vec[h.Sum32()%uint32(e.dim)] += 1.0 / float32(n)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (e *LocalEmbedder) Dimension() int { return e.dim }
