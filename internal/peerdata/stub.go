package peerdata

import (
	"context"
	"strings"
)

// StubProvider serves canned peer data for dev environments without a
// configured provider. Values are loosely modeled on emission-reduction
// target distributions.
type StubProvider struct{}

// NewStubProvider constructs a StubProvider.
func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

// Distribution returns a canned distribution, narrowing with each
// restriction to mimic cohort filtering.
func (s *StubProvider) Distribution(ctx context.Context, q Query) (Distribution, error) {
	if err := ctx.Err(); err != nil {
		return Distribution{}, err
	}
	dist := Distribution{P25: 5, P50: 8, P75: 12, SampleSize: 120}
	if q.SizeBand != "" {
		dist = Distribution{P25: 6, P50: 9, P75: 13, SampleSize: 40}
	}
	if q.Region != "" {
		dist = Distribution{P25: 6.5, P50: 9.5, P75: 14, SampleSize: 12}
	}
	return dist, nil
}

// PeerTargets returns a canned named-peer-set sample.
func (s *StubProvider) PeerTargets(ctx context.Context, q Query) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []float64{4.5, 6, 7.5, 9, 10.5, 12, 14}, nil
}

// RegionalAverage returns a canned regional average.
func (s *StubProvider) RegionalAverage(ctx context.Context, region, metric string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 8.5, nil
}

// PathwayRequirement returns a canned sector pathway requirement.
func (s *StubProvider) PathwayRequirement(ctx context.Context, sectorCode string, horizonYear int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.HasPrefix(sectorCode, "D35") { // power generation decarbonizes faster
		return 12, nil
	}
	return 7.5, nil
}

var _ Provider = (*StubProvider)(nil)
