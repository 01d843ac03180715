package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestQuerySendsVectorAndParsesMatches(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Api-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{
				{"id": "skills-go:1", "score": 0.91},
				{"id": "projects-terminal:2", "score": 0.67},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "resume", 5*time.Second)
	matches, err := c.Query(context.Background(), []float32{0.1, 0.2}, 4)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if gotPath != "/query" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" {
		t.Fatalf("api key header missing, got %q", gotKey)
	}
	if gotBody["topK"] != float64(4) {
		t.Fatalf("topK not sent: %v", gotBody)
	}
	if gotBody["namespace"] != "resume" {
		t.Fatalf("namespace not sent: %v", gotBody)
	}
	if len(matches) != 2 || matches[0].ID != "skills-go:1" || matches[0].Score != 0.91 {
		t.Fatalf("unexpected matches %+v", matches)
	}
}

func TestUpsertBatches(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors []Vector `json:"vectors"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		batches = append(batches, len(body.Vectors))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	vectors := make([]Vector, upsertBatchSize+5)
	for i := range vectors {
		vectors[i] = Vector{ID: "c", Values: []float32{1}}
	}

	c := New(srv.URL, "k", "", time.Second)
	if err := c.Upsert(context.Background(), vectors); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(batches) != 2 || batches[0] != upsertBatchSize || batches[1] != 5 {
		t.Fatalf("unexpected batching %v", batches)
	}
}

func TestDeleteSkipsEmptyIDList(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", time.Second)
	if err := c.Delete(context.Background(), nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if called {
		t.Fatal("empty delete must not hit the network")
	}
}

func TestErrorStatusSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", time.Second)
	_, err := c.Query(context.Background(), []float32{1}, 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "429") || !strings.Contains(got, "quota exceeded") {
		t.Fatalf("error lacks detail: %q", got)
	}
}
