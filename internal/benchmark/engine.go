package benchmark

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"kpieval-backend/internal/peerdata"
	"kpieval-backend/internal/shared/telemetry"
)

// Layer indices.
const (
	LayerSector    = 1
	LayerSize      = 2
	LayerGeography = 3
	LayerPeerGroup = 4
	LayerPathway   = 5
)

// DefaultMinPeerSample is the minimum regional cohort size before the
// geography layer falls back to the regional average.
const DefaultMinPeerSample = 5

// Layer is one of the five peer-comparison layers for a target.
type Layer struct {
	Layer              int     `json:"layer"`
	Criteria           string  `json:"criteria"`
	P25                float64 `json:"p25,omitempty"`
	P50                float64 `json:"p50,omitempty"`
	P75                float64 `json:"p75,omitempty"`
	CompanyValue       float64 `json:"companyValue"`
	Requirement        float64 `json:"requirement,omitempty"`
	PercentileRank     float64 `json:"percentileRank"`
	Available          bool    `json:"available"`
	Extrapolated       bool    `json:"extrapolated,omitempty"`
	InsufficientSample bool    `json:"insufficientSample,omitempty"`
	Narrative          string  `json:"narrative"`
}

// Input selects the company target to benchmark.
type Input struct {
	SectorCode  string  `json:"sectorCode"`
	SizeBand    string  `json:"sizeBand"`
	Region      string  `json:"region"`
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	HorizonYear int     `json:"horizonYear"`
}

// Result is the full five-layer benchmark outcome.
type Result struct {
	Layers             []Layer `json:"layers"`
	Score              float64 `json:"score"`
	AvailableLayers    int     `json:"availableLayers"`
	AnyExtrapolated    bool    `json:"anyExtrapolated"`
	InsufficientSample bool    `json:"insufficientSample"`
	PathwayGap         float64 `json:"pathwayGap"`
	PathwayAvailable   bool    `json:"pathwayAvailable"`
}

// Engine computes the five benchmark layers for a KPI target. Each layer
// degrades independently: a data-source outage flags that layer
// unavailable and never aborts the whole computation.
type Engine struct {
	Provider      peerdata.Provider
	MinPeerSample int
}

// NewEngine constructs an Engine with default sample thresholds.
func NewEngine(provider peerdata.Provider) *Engine {
	return &Engine{Provider: provider, MinPeerSample: DefaultMinPeerSample}
}

// ComputeLayers attempts all five layers and aggregates the result. It
// fails only when no layer could be computed at all.
func (e *Engine) ComputeLayers(ctx context.Context, in Input) (Result, error) {
	minSample := e.MinPeerSample
	if minSample <= 0 {
		minSample = DefaultMinPeerSample
	}

	layers := []Layer{
		e.distributionLayer(ctx, LayerSector, "sector", peerdata.Query{
			SectorCode: in.SectorCode, Metric: in.Metric, HorizonYear: in.HorizonYear,
		}, in.Value),
		e.distributionLayer(ctx, LayerSize, "size-adjusted", peerdata.Query{
			SectorCode: in.SectorCode, SizeBand: in.SizeBand, Metric: in.Metric, HorizonYear: in.HorizonYear,
		}, in.Value),
		e.geographyLayer(ctx, in, minSample),
		e.peerGroupLayer(ctx, in),
		e.pathwayLayer(ctx, in),
	}

	result := Result{Layers: layers}
	var rankSum float64
	for _, layer := range layers {
		if !layer.Available {
			continue
		}
		result.AvailableLayers++
		rankSum += layer.PercentileRank
		if layer.Extrapolated {
			result.AnyExtrapolated = true
		}
		if layer.InsufficientSample {
			result.InsufficientSample = true
		}
		if layer.Layer == LayerPathway {
			result.PathwayAvailable = true
			result.PathwayGap = in.Value - layer.Requirement
		}
	}
	if result.AvailableLayers == 0 {
		return Result{}, fmt.Errorf("no benchmark layer could be computed for sector %s", in.SectorCode)
	}

	// Unavailable layers contribute zero weight; the mean redistributes
	// their share across the layers that were computed.
	result.Score = rankSum / float64(result.AvailableLayers)
	return result, nil
}

func (e *Engine) distributionLayer(ctx context.Context, index int, narrative string, q peerdata.Query, value float64) Layer {
	layer := Layer{Layer: index, Narrative: narrative, CompanyValue: value, Criteria: criteriaString(q)}

	dist, err := e.Provider.Distribution(ctx, q)
	if err != nil {
		logLayerDegraded(index, narrative, err)
		return layer
	}
	raw, extrapolated := Rank(value, dist.P25, dist.P50, dist.P75)
	layer.P25, layer.P50, layer.P75 = dist.P25, dist.P50, dist.P75
	layer.PercentileRank = ReportedRank(raw)
	layer.Extrapolated = extrapolated
	layer.Available = true
	return layer
}

func (e *Engine) geographyLayer(ctx context.Context, in Input, minSample int) Layer {
	q := peerdata.Query{
		SectorCode: in.SectorCode, SizeBand: in.SizeBand, Region: in.Region,
		Metric: in.Metric, HorizonYear: in.HorizonYear,
	}
	layer := Layer{Layer: LayerGeography, Narrative: "geography-adjusted", CompanyValue: in.Value, Criteria: criteriaString(q)}

	dist, err := e.Provider.Distribution(ctx, q)
	if err == nil && dist.SampleSize >= minSample {
		raw, extrapolated := Rank(in.Value, dist.P25, dist.P50, dist.P75)
		layer.P25, layer.P50, layer.P75 = dist.P25, dist.P50, dist.P75
		layer.PercentileRank = ReportedRank(raw)
		layer.Extrapolated = extrapolated
		layer.Available = true
		return layer
	}
	if err != nil && !errors.Is(err, peerdata.ErrInsufficientData) {
		logLayerDegraded(LayerGeography, "geography-adjusted", err)
		return layer
	}

	// Thin or empty regional cohort: fall back to the unrestricted
	// regional average. The insufficient-sample flag carries a confidence
	// penalty downstream.
	avg, err := e.Provider.RegionalAverage(ctx, in.Region, in.Metric)
	if err != nil || avg <= 0 {
		logLayerDegraded(LayerGeography, "geography-adjusted fallback", err)
		return layer
	}
	layer.PercentileRank = ReportedRank(clamp(50*in.Value/avg, 5, 95))
	layer.InsufficientSample = true
	layer.Available = true
	return layer
}

func (e *Engine) peerGroupLayer(ctx context.Context, in Input) Layer {
	q := peerdata.Query{SectorCode: in.SectorCode, SizeBand: in.SizeBand, Region: in.Region, Metric: in.Metric}
	layer := Layer{Layer: LayerPeerGroup, Narrative: "peer-group", CompanyValue: in.Value, Criteria: criteriaString(q)}

	targets, err := e.Provider.PeerTargets(ctx, q)
	if err != nil || len(targets) == 0 {
		logLayerDegraded(LayerPeerGroup, "peer-group", err)
		return layer
	}
	layer.PercentileRank = ReportedRank(sampleRank(in.Value, targets))
	layer.Available = true
	return layer
}

func (e *Engine) pathwayLayer(ctx context.Context, in Input) Layer {
	layer := Layer{Layer: LayerPathway, Narrative: "pathway", CompanyValue: in.Value}

	required, err := e.Provider.PathwayRequirement(ctx, in.SectorCode, in.HorizonYear)
	if err != nil {
		logLayerDegraded(LayerPathway, "pathway", err)
		return layer
	}
	gap := in.Value - required
	layer.Requirement = required
	layer.Criteria = fmt.Sprintf("pathway requirement %.2f at %d", required, in.HorizonYear)
	// An on-pathway target scores 50; each point of headroom moves the
	// score five points, clamped like every other layer.
	layer.PercentileRank = ReportedRank(clamp(50+gap*5, 0, 100))
	layer.Available = true
	return layer
}

// sampleRank is the standard percentile rank of value within an observed
// sample: share strictly below plus half the ties.
func sampleRank(value float64, sample []float64) float64 {
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)
	below, ties := 0, 0
	for _, v := range sorted {
		switch {
		case v < value:
			below++
		case v == value:
			ties++
		}
	}
	return 100 * (float64(below) + 0.5*float64(ties)) / float64(len(sorted))
}

func criteriaString(q peerdata.Query) string {
	out := "sector=" + q.SectorCode
	if q.SizeBand != "" {
		out += " size=" + q.SizeBand
	}
	if q.Region != "" {
		out += " region=" + q.Region
	}
	return out
}

func logLayerDegraded(index int, narrative string, err error) {
	fields := map[string]any{"layer": index, "narrative": narrative}
	if err != nil {
		fields["error"] = err.Error()
	}
	telemetry.Warn("benchmark.layer_degraded", fields)
}
