package embedder

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeEmbeddings struct {
	batchSizes []int
	err        error
}

func (f *fakeEmbeddings) CreateEmbeddings(_ context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	texts := req.Convert().Input.([]string)
	f.batchSizes = append(f.batchSizes, len(texts))

	resp := openai.EmbeddingResponse{}
	for i := range texts {
		resp.Data = append(resp.Data, openai.Embedding{Embedding: []float32{float32(i), 1}})
	}
	return resp, nil
}

func TestEmbedBatchesAndPreservesOrder(t *testing.T) {
	fake := &fakeEmbeddings{}
	e := &OpenAIEmbedder{client: fake, model: "test-model"}

	texts := make([]string, batchSize+3)
	for i := range texts {
		texts[i] = "chunk"
	}

	out, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(out))
	}
	if len(fake.batchSizes) != 2 || fake.batchSizes[0] != batchSize || fake.batchSizes[1] != 3 {
		t.Fatalf("unexpected batching %v", fake.batchSizes)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := &OpenAIEmbedder{client: &fakeEmbeddings{}, model: "m"}

	out, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}

func TestEmbedPropagatesUpstreamError(t *testing.T) {
	e := &OpenAIEmbedder{client: &fakeEmbeddings{err: errors.New("quota")}, model: "m"}

	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedSingle(t *testing.T) {
	e := &OpenAIEmbedder{client: &fakeEmbeddings{}, model: "m"}

	vec, err := e.EmbedSingle(context.Background(), "question")
	if err != nil {
		t.Fatalf("embed single: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("unexpected vector %v", vec)
	}
}
