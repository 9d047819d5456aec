package peerdata

import (
	"context"
	"errors"
)

// ErrInsufficientData signals a valid degraded result: the provider is
// reachable but has no usable sample for the query. It is not a failure.
var ErrInsufficientData = errors.New("insufficient data")

// Distribution holds percentile statistics for a peer population.
type Distribution struct {
	P25        float64 `json:"p25"`
	P50        float64 `json:"p50"`
	P75        float64 `json:"p75"`
	SampleSize int     `json:"sampleSize"`
}

// Query selects a peer population. Empty SizeBand/Region leave that
// dimension unrestricted.
type Query struct {
	SectorCode  string
	SizeBand    string
	Region      string
	Metric      string
	HorizonYear int
}

// Provider is the peer/regulatory data collaborator contract.
type Provider interface {
	// Distribution returns percentile statistics for the selected peer
	// population. Returns ErrInsufficientData when the sample is empty.
	Distribution(ctx context.Context, q Query) (Distribution, error)

	// PeerTargets returns the individual target values of a named peer
	// group matching sector+size+region.
	PeerTargets(ctx context.Context, q Query) ([]float64, error)

	// RegionalAverage returns the unrestricted average target for a
	// region and metric, used as a fallback for thin regional samples.
	RegionalAverage(ctx context.Context, region, metric string) (float64, error)

	// PathwayRequirement returns the science-based pathway requirement
	// for a sector at the horizon year, in the metric's unit.
	PathwayRequirement(ctx context.Context, sectorCode string, horizonYear int) (float64, error)
}
