package docintel

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

// HTTPClient implements Client against the document intelligence service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient constructs an HTTP-backed document intelligence client.
func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("document intelligence base URL is required")
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// ExtractDocument posts the document reference and decodes the extraction.
func (c *HTTPClient) ExtractDocument(ctx context.Context, ref Ref) (Extraction, error) {
	payload, err := json.Marshal(ref)
	if err != nil {
		return Extraction{}, fmt.Errorf("marshal document ref: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return Extraction{}, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("extract request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		return Extraction{}, ErrUnsupportedFormat
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Extraction{}, fmt.Errorf("extract http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var extraction Extraction
	if err := json.NewDecoder(resp.Body).Decode(&extraction); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	if extraction.DocumentID == "" {
		extraction.DocumentID = ref.ID
	}
	return extraction, nil
}

var _ Client = (*HTTPClient)(nil)
