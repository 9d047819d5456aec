package synthesis

import (
	"fmt"
	"math"
	"sort"

	"kpieval-backend/internal/evaluations"
)

// StageScore is one scoring stage's contribution as reported upstream.
// Unusable scores come from failed or skipped best-effort stages; their
// weight is redistributed across the usable ones.
type StageScore struct {
	StageID  string
	Score    float64
	Usable   bool
	Degraded bool
}

// Signals are the qualitative findings that drive flags and confidence
// penalties, collected from the upstream stage outputs.
type Signals struct {
	BaselineUnaudited      bool
	BaselineMismatch       bool
	InsufficientPeerSample bool
	Extrapolated           bool
	PathwayAvailable       bool
	PathwayGap             float64
	TrackRecordPerfect     bool
	TrackRecordPoor        bool
	StrongGovernance       bool
	CapexBacked            bool
}

// Engine turns stage scores and signals into a final lending assessment.
type Engine struct {
	cfg Config
}

// NewEngine validates the configuration and constructs an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Synthesize computes the composite score over the usable stages,
// categorizes it, derives confidence and flags, and maps the category to
// a lending recommendation.
func (e *Engine) Synthesize(scores []StageScore, sig Signals) (evaluations.FinalAssessment, error) {
	breakdown, composite, clean, err := e.composite(scores)
	if err != nil {
		return evaluations.FinalAssessment{}, err
	}

	category := e.categorize(composite)
	recommendation, pricingBps := e.recommend(category, composite)
	red, green := EvaluateFlags(sig)

	return evaluations.FinalAssessment{
		Category:             category,
		CompositeScore:       round1(composite),
		Confidence:           e.confidence(clean, sig),
		Recommendation:       recommendation,
		PricingAdjustmentBps: pricingBps,
		RedFlags:             red,
		GreenFlags:           green,
		WeightBreakdown:      breakdown,
	}, nil
}

// composite returns the per-stage breakdown, the weighted composite over
// usable stages, and the count of stages that contributed without
// degradation. Configured weights for unusable stages are renormalized
// away rather than treated as zero scores.
func (e *Engine) composite(scores []StageScore) ([]evaluations.WeightContribution, float64, int, error) {
	byStage := make(map[string]StageScore, len(scores))
	for _, s := range scores {
		byStage[s.StageID] = s
	}

	ids := make([]string, 0, len(e.cfg.Weights))
	for id := range e.cfg.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var weightSum, weighted float64
	clean := 0
	breakdown := make([]evaluations.WeightContribution, 0, len(ids))
	for _, id := range ids {
		weight := e.cfg.Weights[id]
		score, ok := byStage[id]
		if !ok || !score.Usable {
			breakdown = append(breakdown, evaluations.WeightContribution{StageID: id, Weight: 0, Degraded: true})
			continue
		}
		if !score.Degraded {
			clean++
		}
		weightSum += weight
		weighted += weight * clampScore(score.Score)
		breakdown = append(breakdown, evaluations.WeightContribution{
			StageID:  id,
			Weight:   weight,
			Score:    round1(clampScore(score.Score)),
			Degraded: score.Degraded,
		})
	}
	if weightSum == 0 {
		return nil, 0, 0, fmt.Errorf("no usable scoring stage")
	}

	// Redistribute: effective weight of each usable stage scales by
	// 100/weightSum so contributions still total the composite.
	for i := range breakdown {
		if breakdown[i].Weight > 0 {
			breakdown[i].Weight = round1(breakdown[i].Weight * 100 / weightSum)
		}
	}
	return breakdown, weighted / weightSum, clean, nil
}

func (e *Engine) categorize(composite float64) string {
	switch {
	case composite < e.cfg.WeakBelow:
		return evaluations.CategoryWeak
	case composite >= e.cfg.AmbitiousAt:
		return evaluations.CategoryAmbitious
	default:
		return evaluations.CategoryModerate
	}
}

func (e *Engine) recommend(category string, composite float64) (string, int) {
	switch category {
	case evaluations.CategoryWeak:
		return evaluations.RecommendationReject, 0
	case evaluations.CategoryAmbitious:
		return evaluations.RecommendationFull, -e.cfg.FullApprovalDiscountBps
	default:
		gap := e.cfg.AmbitiousAt - composite
		return evaluations.RecommendationConditional, int(math.Ceil(gap * e.cfg.StepUpBpsPerPoint))
	}
}

// confidence starts from the fraction of scoring stages that contributed
// a non-degraded score and subtracts data-quality penalties. A degraded
// contribution counts against confidence even though its score is used.
func (e *Engine) confidence(clean int, sig Signals) float64 {
	total := len(e.cfg.Weights)
	confidence := 100 * float64(clean) / float64(total)
	if sig.InsufficientPeerSample {
		confidence -= e.cfg.InsufficientSamplePenalty
	}
	if sig.Extrapolated {
		confidence -= e.cfg.ExtrapolationPenalty
	}
	return round1(clampScore(confidence))
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
