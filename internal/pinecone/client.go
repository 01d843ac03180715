package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const upsertBatchSize = 32

// Client is a minimal data-plane client for a Pinecone index. Only the three
// operations the concierge needs are implemented: query, upsert, delete.
type Client struct {
	host      string
	apiKey    string
	namespace string
	http      *http.Client
}

// Match is one similarity hit from a query.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Vector is one entry to upsert: the chunk id, its embedding, and a small
// metadata payload for operator debugging in the Pinecone console.
type Vector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// New creates a client for the given index host. Timeout bounds every call so
// a slow remote never stalls retrieval past the fallback window.
func New(host, apiKey, namespace string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		host:      strings.TrimRight(host, "/"),
		apiKey:    apiKey,
		namespace: namespace,
		http:      &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

// Query returns the ids of the topK nearest vectors, best first.
func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	var resp queryResponse
	err := c.post(ctx, "/query", queryRequest{
		Vector:    vector,
		TopK:      topK,
		Namespace: c.namespace,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

type upsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

// Upsert writes vectors in batches.
func (c *Client) Upsert(ctx context.Context, vectors []Vector) error {
	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		err := c.post(ctx, "/vectors/upsert", upsertRequest{
			Vectors:   vectors[start:end],
			Namespace: c.namespace,
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

// Delete removes vectors by id.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.post(ctx, "/vectors/delete", deleteRequest{
		IDs:       ids,
		Namespace: c.namespace,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pinecone %s returned %d: %s", path, resp.StatusCode, string(detail))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
