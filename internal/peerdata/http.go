package peerdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPProvider implements Provider against the peer/regulatory data service.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider constructs an HTTP-backed provider.
func NewHTTPProvider(baseURL string) (*HTTPProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("peer data base URL is required")
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Distribution fetches percentile statistics for the selected population.
func (p *HTTPProvider) Distribution(ctx context.Context, q Query) (Distribution, error) {
	params := url.Values{}
	params.Set("sector", q.SectorCode)
	params.Set("metric", q.Metric)
	if q.SizeBand != "" {
		params.Set("size", q.SizeBand)
	}
	if q.Region != "" {
		params.Set("region", q.Region)
	}
	if q.HorizonYear > 0 {
		params.Set("horizon", strconv.Itoa(q.HorizonYear))
	}

	var dist Distribution
	if err := p.getJSON(ctx, "/v1/distributions", params, &dist); err != nil {
		return Distribution{}, err
	}
	return dist, nil
}

// PeerTargets fetches individual peer target values.
func (p *HTTPProvider) PeerTargets(ctx context.Context, q Query) ([]float64, error) {
	params := url.Values{}
	params.Set("sector", q.SectorCode)
	params.Set("metric", q.Metric)
	params.Set("size", q.SizeBand)
	params.Set("region", q.Region)

	var body struct {
		Targets []float64 `json:"targets"`
	}
	if err := p.getJSON(ctx, "/v1/peer-targets", params, &body); err != nil {
		return nil, err
	}
	if len(body.Targets) == 0 {
		return nil, ErrInsufficientData
	}
	return body.Targets, nil
}

// RegionalAverage fetches the unrestricted regional average target.
func (p *HTTPProvider) RegionalAverage(ctx context.Context, region, metric string) (float64, error) {
	params := url.Values{}
	params.Set("region", region)
	params.Set("metric", metric)

	var body struct {
		Average float64 `json:"average"`
	}
	if err := p.getJSON(ctx, "/v1/regional-average", params, &body); err != nil {
		return 0, err
	}
	return body.Average, nil
}

// PathwayRequirement fetches the sector pathway requirement at the horizon year.
func (p *HTTPProvider) PathwayRequirement(ctx context.Context, sectorCode string, horizonYear int) (float64, error) {
	params := url.Values{}
	params.Set("sector", sectorCode)
	params.Set("horizon", strconv.Itoa(horizonYear))

	var body struct {
		Requirement float64 `json:"requirement"`
	}
	if err := p.getJSON(ctx, "/v1/pathway-requirement", params, &body); err != nil {
		return 0, err
	}
	return body.Requirement, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build peer data request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("peer data request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return ErrInsufficientData
	case resp.StatusCode != http.StatusOK:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("peer data http status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode peer data response: %w", err)
	}
	return nil
}

var _ Provider = (*HTTPProvider)(nil)
