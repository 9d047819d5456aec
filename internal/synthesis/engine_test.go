package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpieval-backend/internal/evaluations"
)

func allUsable(scores map[string]float64) []StageScore {
	out := make([]StageScore, 0, len(scores))
	for id, s := range scores {
		out = append(out, StageScore{StageID: id, Score: s, Usable: true})
	}
	return out
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[StagePeerBenchmark] = 40
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Weights = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.AmbitiousAt = 30
	assert.Error(t, cfg.Validate())
}

func TestSynthesizeAmbitious(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	scores := allUsable(map[string]float64{
		StageBaselineVerification: 90,
		StagePeerBenchmark:        85,
		StageGovernance:           80,
		StageCapexCredibility:     75,
		StageScienceAlignment:     80,
		StageAchievabilityRisk:    75,
	})
	sig := Signals{PathwayAvailable: true, PathwayGap: 2.5, StrongGovernance: true, CapexBacked: true, TrackRecordPerfect: true}

	got, err := engine.Synthesize(scores, sig)
	require.NoError(t, err)

	// 0.15*90 + 0.30*85 + 0.20*80 + 0.15*75 + 0.10*80 + 0.10*75 = 81.75
	assert.Equal(t, 81.8, got.CompositeScore)
	assert.Equal(t, evaluations.CategoryAmbitious, got.Category)
	assert.Equal(t, evaluations.RecommendationFull, got.Recommendation)
	assert.Equal(t, -25, got.PricingAdjustmentBps)
	assert.Equal(t, 100.0, got.Confidence)
	assert.Empty(t, got.RedFlags)
	assert.Len(t, got.GreenFlags, 4)
}

func TestSynthesizeWeakRejects(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	scores := allUsable(map[string]float64{
		StageBaselineVerification: 30,
		StagePeerBenchmark:        25,
		StageGovernance:           40,
		StageCapexCredibility:     35,
		StageScienceAlignment:     20,
		StageAchievabilityRisk:    30,
	})

	got, err := engine.Synthesize(scores, Signals{})
	require.NoError(t, err)
	assert.Equal(t, evaluations.CategoryWeak, got.Category)
	assert.Equal(t, evaluations.RecommendationReject, got.Recommendation)
	assert.Equal(t, 0, got.PricingAdjustmentBps)
}

func TestSynthesizeModeratePricesGap(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	scores := allUsable(map[string]float64{
		StageBaselineVerification: 60,
		StagePeerBenchmark:        60,
		StageGovernance:           60,
		StageCapexCredibility:     60,
		StageScienceAlignment:     60,
		StageAchievabilityRisk:    60,
	})

	got, err := engine.Synthesize(scores, Signals{})
	require.NoError(t, err)
	assert.Equal(t, evaluations.CategoryModerate, got.Category)
	assert.Equal(t, evaluations.RecommendationConditional, got.Recommendation)
	// 15 points short of the ambitious threshold at 2 bps per point.
	assert.Equal(t, 30, got.PricingAdjustmentBps)
}

func TestSynthesizeRenormalizesUnusableWeight(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	scores := allUsable(map[string]float64{
		StageBaselineVerification: 80,
		StagePeerBenchmark:        80,
		StageGovernance:           80,
		StageCapexCredibility:     80,
		StageScienceAlignment:     80,
	})
	scores = append(scores, StageScore{StageID: StageAchievabilityRisk, Usable: false})

	got, err := engine.Synthesize(scores, Signals{})
	require.NoError(t, err)

	// Every usable stage scored 80, so losing one stage must not move
	// the composite.
	assert.Equal(t, 80.0, got.CompositeScore)

	// Five of six stages usable, no data-quality penalties.
	assert.InDelta(t, 83.3, got.Confidence, 0.05)

	var weightSum float64
	for _, wc := range got.WeightBreakdown {
		weightSum += wc.Weight
		if wc.StageID == StageAchievabilityRisk {
			assert.True(t, wc.Degraded)
			assert.Zero(t, wc.Weight)
		}
	}
	assert.InDelta(t, 100, weightSum, 0.5)
}

func TestSynthesizeNoUsableStages(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	_, err = engine.Synthesize(nil, Signals{})
	assert.Error(t, err)
}

func TestConfidencePenalties(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	scores := allUsable(map[string]float64{
		StageBaselineVerification: 70,
		StagePeerBenchmark:        70,
		StageGovernance:           70,
		StageCapexCredibility:     70,
		StageScienceAlignment:     70,
		StageAchievabilityRisk:    70,
	})

	got, err := engine.Synthesize(scores, Signals{InsufficientPeerSample: true, Extrapolated: true})
	require.NoError(t, err)
	assert.Equal(t, 85.0, got.Confidence)
	assert.Contains(t, got.RedFlags, "peer comparison relies on a thin regional sample")
}

func TestConfidenceCountsDegradedStages(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	scores := allUsable(map[string]float64{
		StageBaselineVerification: 70,
		StagePeerBenchmark:        70,
		StageGovernance:           70,
		StageCapexCredibility:     70,
		StageScienceAlignment:     70,
		StageAchievabilityRisk:    70,
	})

	clean, err := engine.Synthesize(scores, Signals{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, clean.Confidence)

	// A benchmark that lost a layer still scores, but with lower
	// confidence than an identical clean run.
	for i := range scores {
		if scores[i].StageID == StagePeerBenchmark {
			scores[i].Degraded = true
		}
	}
	degraded, err := engine.Synthesize(scores, Signals{})
	require.NoError(t, err)
	assert.Less(t, degraded.Confidence, clean.Confidence)
	assert.InDelta(t, 83.3, degraded.Confidence, 0.05)
	assert.Equal(t, clean.CompositeScore, degraded.CompositeScore)
}

func TestEvaluateFlagsPathway(t *testing.T) {
	red, green := EvaluateFlags(Signals{PathwayAvailable: true, PathwayGap: -1})
	assert.Contains(t, red, "target falls short of the sector decarbonization pathway")
	assert.Empty(t, green)

	red, green = EvaluateFlags(Signals{PathwayAvailable: true, PathwayGap: 1})
	assert.Empty(t, red)
	assert.Contains(t, green, "target exceeds the sector decarbonization pathway requirement")

	// Unknown pathway flags neither direction.
	red, green = EvaluateFlags(Signals{PathwayGap: -1})
	assert.Empty(t, red)
	assert.Empty(t, green)
}

func TestMergeOverridesSelectively(t *testing.T) {
	cfg := DefaultConfig().Merge(Config{WeakBelow: 35})
	assert.Equal(t, 35.0, cfg.WeakBelow)
	assert.Equal(t, 75.0, cfg.AmbitiousAt)
	require.NoError(t, cfg.Validate())
}
