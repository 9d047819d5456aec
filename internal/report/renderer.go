package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Renderer turns an assembled report into the archived document bytes.
type Renderer interface {
	Render(ctx context.Context, r Report) ([]byte, error)
}

// JSONRenderer is the default renderer: the report serialized as-is.
type JSONRenderer struct{}

func (JSONRenderer) Render(ctx context.Context, r Report) ([]byte, error) {
	return json.Marshal(r)
}

// HTTPRenderer delegates rendering to an external report service, used
// when bankers want formatted documents instead of raw JSON.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRenderer constructs a renderer against baseURL.
func NewHTTPRenderer(baseURL string) *HTTPRenderer {
	return &HTTPRenderer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Render posts the report to the render endpoint and returns the
// document bytes.
func (r *HTTPRenderer) Render(ctx context.Context, rep Report) ([]byte, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/render", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render report: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
