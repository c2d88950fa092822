// Package qdrant implements driven.VectorIndex against a Qdrant-compatible
// REST API, with payload filtering, scroll-based listing, and snapshot
// create/restore for cross-host migration.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
)

// Config configures the Qdrant REST client.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Client is a minimal REST client to a Qdrant-compatible vector store.
// It assumes cosine distance and drives collection lifecycle explicitly
// so recreate is never implicit.
type Client struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// New constructs the Qdrant REST client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection if absent, or drops and
// recreates it when recreate is true — the only destructive path
// through this adapter, and it is never taken implicitly. A stored
// dimension differing from dim without recreate is a fatal
// domain.ErrDimensionMismatch; the collection is left untouched until
// the operator explicitly passes --recreate.
func (c *Client) EnsureCollection(ctx context.Context, dim int, recreate bool) error {
	if dim <= 0 {
		return fmt.Errorf("%w: vector dimension must be positive", domain.ErrInvalidInput)
	}
	if !recreate {
		var info collectionInfo
		err := c.getJSON(ctx, fmt.Sprintf("%s/collections/%s", c.url, c.collection), &info)
		if err == nil {
			existing := info.Result.Config.Params.Vectors.Size
			if existing == dim {
				return nil
			}
			return fmt.Errorf("%w: collection %s has dimension %d, backend produces %d; rerun with --recreate to rebuild",
				domain.ErrDimensionMismatch, c.collection, existing, dim)
		}
	}
	if recreate {
		_ = c.deleteRaw(ctx, fmt.Sprintf("%s/collections/%s", c.url, c.collection))
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	return c.putJSON(ctx, fmt.Sprintf("%s/collections/%s", c.url, c.collection), body, nil)
}

// Upsert writes points to the collection, waiting for the write to be
// acknowledged so a subsequent search observes it.
func (c *Client) Upsert(ctx context.Context, points []driven.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": payload}
	return c.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", c.url, c.collection), body, nil)
}

func filterClause(f driven.VectorFilter) map[string]any {
	var must []map[string]any
	add := func(key, value string) {
		if value == "" {
			return
		}
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	add("domain", f.Domain)
	add("version", f.Version)
	add("language", f.Language)
	if f.PathPrefix != "" {
		must = append(must, map[string]any{
			"key":  "path",
			"match": map[string]any{"text": f.PathPrefix},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// Search returns the k nearest points to vector, optionally filtered by
// payload fields.
func (c *Client) Search(ctx context.Context, vector []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	if k <= 0 {
		k = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if clause := filterClause(filter); clause != nil {
		req["filter"] = clause
	}
	var resp struct {
		Result []struct {
			ID      json.Number    `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", c.url, c.collection), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]driven.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, _ := r.ID.Int64()
		hits = append(hits, driven.VectorHit{ID: uint64(id), Payload: r.Payload, Score: r.Score})
	}
	return hits, nil
}

// Scroll lists points matching filter without a similarity query.
func (c *Client) Scroll(ctx context.Context, filter driven.VectorFilter, cursor string, limit int) ([]driven.VectorHit, string, error) {
	if limit <= 0 {
		limit = 100
	}
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if clause := filterClause(filter); clause != nil {
		req["filter"] = clause
	}
	if cursor != "" {
		req["offset"] = cursor
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      json.Number    `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
			NextPageOffset any `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/scroll", c.url, c.collection), req, &resp); err != nil {
		return nil, "", err
	}
	hits := make([]driven.VectorHit, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		id, _ := p.ID.Int64()
		hits = append(hits, driven.VectorHit{ID: uint64(id), Payload: p.Payload})
	}
	next := ""
	if resp.Result.NextPageOffset != nil {
		next = fmt.Sprintf("%v", resp.Result.NextPageOffset)
	}
	return hits, next, nil
}

// Delete removes points by id.
func (c *Client) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return c.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.url, c.collection), body, nil)
}

// SnapshotCreate requests a point-in-time snapshot, returning its name.
func (c *Client) SnapshotCreate(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Name string `json:"name"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("%s/collections/%s/snapshots", c.url, c.collection), map[string]any{}, &resp); err != nil {
		return "", err
	}
	return resp.Result.Name, nil
}

// SnapshotRestore restores the collection from a named snapshot.
func (c *Client) SnapshotRestore(ctx context.Context, name string) error {
	body := map[string]any{
		"location": fmt.Sprintf("%s/collections/%s/snapshots/%s", c.url, c.collection, name),
	}
	return c.putJSON(ctx, fmt.Sprintf("%s/collections/%s/snapshots/recover", c.url, c.collection), body, nil)
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

func (c *Client) putJSON(ctx context.Context, url string, body any, out any) error {
	return c.doJSON(ctx, http.MethodPut, url, body, out)
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	return c.doJSON(ctx, http.MethodPost, url, body, out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: encode %s %s: %w", method, url, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("qdrant: build %s %s: %w", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) deleteRaw(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
