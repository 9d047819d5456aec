package synthesis

import (
	"fmt"
	"math"
)

// Stage IDs carrying synthesis weight.
const (
	StageBaselineVerification = "baseline_verification"
	StagePeerBenchmark        = "peer_benchmark"
	StageGovernance           = "governance_assessment"
	StageCapexCredibility     = "capex_credibility"
	StageScienceAlignment     = "science_alignment"
	StageAchievabilityRisk    = "achievability_risk"
)

// weightTolerance is the accepted float drift when validating that
// configured weights sum to 100.
const weightTolerance = 1e-6

// Config controls scoring, categorization and pricing. Zero-value fields
// are filled from DefaultConfig by Merge.
type Config struct {
	// Weights maps scoring stage IDs to their share of the composite
	// score. Must sum to 100.
	Weights map[string]float64 `yaml:"weights"`

	// WeakBelow is the exclusive upper bound of the WEAK category.
	WeakBelow float64 `yaml:"weak_below"`

	// AmbitiousAt is the inclusive lower bound of the AMBITIOUS category.
	AmbitiousAt float64 `yaml:"ambitious_at"`

	// StepUpBpsPerPoint prices a conditional approval: basis points of
	// margin step-up per composite point short of AmbitiousAt.
	StepUpBpsPerPoint float64 `yaml:"step_up_bps_per_point"`

	// FullApprovalDiscountBps is the margin discount granted on full
	// approval. Stored positive, applied as a reduction.
	FullApprovalDiscountBps int `yaml:"full_approval_discount_bps"`

	// InsufficientSamplePenalty and ExtrapolationPenalty reduce the
	// confidence score when the benchmark had to degrade.
	InsufficientSamplePenalty float64 `yaml:"insufficient_sample_penalty"`
	ExtrapolationPenalty      float64 `yaml:"extrapolation_penalty"`
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			StageBaselineVerification: 15,
			StagePeerBenchmark:        30,
			StageGovernance:           20,
			StageCapexCredibility:     15,
			StageScienceAlignment:     10,
			StageAchievabilityRisk:    10,
		},
		WeakBelow:                 40,
		AmbitiousAt:               75,
		StepUpBpsPerPoint:         2,
		FullApprovalDiscountBps:   25,
		InsufficientSamplePenalty: 10,
		ExtrapolationPenalty:      5,
	}
}

// Merge overlays non-zero fields of override onto c and returns the
// result. Weights replace wholesale when provided.
func (c Config) Merge(override Config) Config {
	out := c
	if len(override.Weights) > 0 {
		out.Weights = override.Weights
	}
	if override.WeakBelow != 0 {
		out.WeakBelow = override.WeakBelow
	}
	if override.AmbitiousAt != 0 {
		out.AmbitiousAt = override.AmbitiousAt
	}
	if override.StepUpBpsPerPoint != 0 {
		out.StepUpBpsPerPoint = override.StepUpBpsPerPoint
	}
	if override.FullApprovalDiscountBps != 0 {
		out.FullApprovalDiscountBps = override.FullApprovalDiscountBps
	}
	if override.InsufficientSamplePenalty != 0 {
		out.InsufficientSamplePenalty = override.InsufficientSamplePenalty
	}
	if override.ExtrapolationPenalty != 0 {
		out.ExtrapolationPenalty = override.ExtrapolationPenalty
	}
	return out
}

// Validate rejects configurations that would corrupt scoring.
func (c Config) Validate() error {
	if len(c.Weights) == 0 {
		return fmt.Errorf("synthesis config: no weights configured")
	}
	var sum float64
	for id, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("synthesis config: negative weight for %s", id)
		}
		sum += w
	}
	if math.Abs(sum-100) > weightTolerance {
		return fmt.Errorf("synthesis config: weights sum to %.4f, want 100", sum)
	}
	if c.WeakBelow <= 0 || c.AmbitiousAt <= c.WeakBelow || c.AmbitiousAt > 100 {
		return fmt.Errorf("synthesis config: invalid category thresholds weak<%.1f ambitious>=%.1f", c.WeakBelow, c.AmbitiousAt)
	}
	return nil
}
