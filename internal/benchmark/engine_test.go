package benchmark

import (
	"context"
	"errors"
	"testing"

	"kpieval-backend/internal/peerdata"
)

// fakeProvider lets each test script per-call behavior.
type fakeProvider struct {
	distribution func(q peerdata.Query) (peerdata.Distribution, error)
	peerTargets  func(q peerdata.Query) ([]float64, error)
	regionalAvg  func(region, metric string) (float64, error)
	pathway      func(sector string, year int) (float64, error)
}

func (f *fakeProvider) Distribution(_ context.Context, q peerdata.Query) (peerdata.Distribution, error) {
	if f.distribution == nil {
		return peerdata.Distribution{}, peerdata.ErrInsufficientData
	}
	return f.distribution(q)
}

func (f *fakeProvider) PeerTargets(_ context.Context, q peerdata.Query) ([]float64, error) {
	if f.peerTargets == nil {
		return nil, peerdata.ErrInsufficientData
	}
	return f.peerTargets(q)
}

func (f *fakeProvider) RegionalAverage(_ context.Context, region, metric string) (float64, error) {
	if f.regionalAvg == nil {
		return 0, peerdata.ErrInsufficientData
	}
	return f.regionalAvg(region, metric)
}

func (f *fakeProvider) PathwayRequirement(_ context.Context, sector string, year int) (float64, error) {
	if f.pathway == nil {
		return 0, peerdata.ErrInsufficientData
	}
	return f.pathway(sector, year)
}

func sectorOnlyInput() Input {
	return Input{SectorCode: "C20", SizeBand: "mid", Region: "EU", Metric: "ghg_intensity_reduction_pct", Value: 10, HorizonYear: 2030}
}

func TestComputeLayersAllAvailable(t *testing.T) {
	provider := &fakeProvider{
		distribution: func(q peerdata.Query) (peerdata.Distribution, error) {
			return peerdata.Distribution{P25: 5, P50: 8, P75: 12, SampleSize: 40}, nil
		},
		peerTargets: func(q peerdata.Query) ([]float64, error) {
			return []float64{4.5, 6, 7.5, 9, 10.5, 12, 14}, nil
		},
		regionalAvg: func(region, metric string) (float64, error) { return 8.5, nil },
		pathway:     func(sector string, year int) (float64, error) { return 7.5, nil },
	}

	result, err := NewEngine(provider).ComputeLayers(context.Background(), sectorOnlyInput())
	if err != nil {
		t.Fatalf("ComputeLayers: %v", err)
	}
	if result.AvailableLayers != 5 {
		t.Fatalf("available layers = %d, want 5", result.AvailableLayers)
	}
	if len(result.Layers) != 5 {
		t.Fatalf("layers = %d, want 5", len(result.Layers))
	}

	// Value 10 against 5/8/12 interpolates to 62.5, published as 65.
	if got := result.Layers[0].PercentileRank; got != 65 {
		t.Fatalf("sector layer rank = %v, want 65", got)
	}
	if result.Layers[0].Extrapolated {
		t.Fatal("in-range value reported as extrapolated")
	}

	// 10 sits above four of seven peer targets with no ties: 100*4/7
	// is ~57.1, published as 55.
	if got := result.Layers[3].PercentileRank; got != 55 {
		t.Fatalf("peer-group rank = %v, want 55", got)
	}

	// Value 10 vs requirement 7.5 has +2.5 headroom.
	if result.PathwayGap != 2.5 {
		t.Fatalf("pathway gap = %v, want 2.5", result.PathwayGap)
	}
	if !result.PathwayAvailable {
		t.Fatal("pathway marked unavailable")
	}
	if result.InsufficientSample || result.AnyExtrapolated {
		t.Fatal("unexpected degradation flags on a clean run")
	}
}

func TestComputeLayersThinRegionalSample(t *testing.T) {
	provider := &fakeProvider{
		distribution: func(q peerdata.Query) (peerdata.Distribution, error) {
			if q.Region != "" {
				return peerdata.Distribution{P25: 6, P50: 9, P75: 13, SampleSize: 3}, nil
			}
			return peerdata.Distribution{P25: 5, P50: 8, P75: 12, SampleSize: 40}, nil
		},
		regionalAvg: func(region, metric string) (float64, error) { return 8.5, nil },
		pathway:     func(sector string, year int) (float64, error) { return 7.5, nil },
	}

	result, err := NewEngine(provider).ComputeLayers(context.Background(), sectorOnlyInput())
	if err != nil {
		t.Fatalf("ComputeLayers: %v", err)
	}
	geo := result.Layers[2]
	if !geo.Available {
		t.Fatal("geography layer should fall back, not degrade")
	}
	if !geo.InsufficientSample {
		t.Fatal("fallback layer missing insufficient-sample flag")
	}
	if !result.InsufficientSample {
		t.Fatal("result missing insufficient-sample flag")
	}
	// Ratio fallback: 50 * 10 / 8.5 is ~58.8, published as 60.
	if geo.PercentileRank != 60 {
		t.Fatalf("fallback rank = %v, want 60", geo.PercentileRank)
	}
}

func TestComputeLayersEmptyRegionalCohort(t *testing.T) {
	provider := &fakeProvider{
		distribution: func(q peerdata.Query) (peerdata.Distribution, error) {
			if q.Region != "" {
				return peerdata.Distribution{}, peerdata.ErrInsufficientData
			}
			return peerdata.Distribution{P25: 5, P50: 8, P75: 12, SampleSize: 40}, nil
		},
		regionalAvg: func(region, metric string) (float64, error) { return 8.5, nil },
	}

	result, err := NewEngine(provider).ComputeLayers(context.Background(), sectorOnlyInput())
	if err != nil {
		t.Fatalf("ComputeLayers: %v", err)
	}
	// An empty cohort is the extreme thin sample: same fallback as a
	// cohort below the minimum, not an unavailable layer.
	geo := result.Layers[2]
	if !geo.Available {
		t.Fatal("geography layer should fall back on an empty regional cohort")
	}
	if !geo.InsufficientSample || !result.InsufficientSample {
		t.Fatal("fallback missing insufficient-sample flag")
	}
	if geo.PercentileRank != 60 {
		t.Fatalf("fallback rank = %v, want 60", geo.PercentileRank)
	}
}

func TestComputeLayersPartialOutage(t *testing.T) {
	boom := errors.New("upstream 503")
	provider := &fakeProvider{
		distribution: func(q peerdata.Query) (peerdata.Distribution, error) {
			if q.SizeBand != "" || q.Region != "" {
				return peerdata.Distribution{}, boom
			}
			return peerdata.Distribution{P25: 5, P50: 8, P75: 12, SampleSize: 40}, nil
		},
	}

	result, err := NewEngine(provider).ComputeLayers(context.Background(), sectorOnlyInput())
	if err != nil {
		t.Fatalf("ComputeLayers: %v", err)
	}
	if result.AvailableLayers != 1 {
		t.Fatalf("available layers = %d, want 1", result.AvailableLayers)
	}
	// The score redistributes onto the one available layer.
	if result.Score != 65 {
		t.Fatalf("score = %v, want 65", result.Score)
	}
	if result.PathwayAvailable {
		t.Fatal("pathway should be unavailable")
	}
}

func TestComputeLayersTotalOutage(t *testing.T) {
	provider := &fakeProvider{}
	if _, err := NewEngine(provider).ComputeLayers(context.Background(), sectorOnlyInput()); err == nil {
		t.Fatal("expected error when no layer is computable")
	}
}

func TestComputeLayersExtrapolationFlag(t *testing.T) {
	provider := &fakeProvider{
		distribution: func(q peerdata.Query) (peerdata.Distribution, error) {
			return peerdata.Distribution{P25: 5, P50: 8, P75: 12, SampleSize: 40}, nil
		},
	}
	in := sectorOnlyInput()
	in.Value = 14

	result, err := NewEngine(provider).ComputeLayers(context.Background(), in)
	if err != nil {
		t.Fatalf("ComputeLayers: %v", err)
	}
	if !result.AnyExtrapolated {
		t.Fatal("expected extrapolation flag for out-of-range value")
	}
}
