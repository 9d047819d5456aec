package stages

import (
	"context"

	"kpieval-backend/internal/benchmark"
	"kpieval-backend/internal/pipeline"
	"kpieval-backend/internal/synthesis"
)

// Synthesis folds every scoring stage into the final lending assessment.
// It is critical: without it there is no recommendation.
type Synthesis struct {
	Engine *synthesis.Engine
}

func (s *Synthesis) ID() string { return pipeline.StageSynthesis }

func (s *Synthesis) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	scores, signals := collectScores(in)
	assessment, err := s.Engine.Synthesize(scores, signals)
	if err != nil {
		return nil, pipeline.Permanent(err)
	}
	return assessment, nil
}

// collectScores reads each scoring stage's output. A stage that failed,
// was skipped or reported itself unusable contributes no score; the
// synthesis engine renormalizes its weight away.
func collectScores(in pipeline.Inputs) ([]synthesis.StageScore, synthesis.Signals) {
	var scores []synthesis.StageScore
	var signals synthesis.Signals

	var baseline BaselineOutput
	if err := in.Decode(pipeline.StageBaselineVerification, &baseline); err == nil {
		scores = append(scores, synthesis.StageScore{
			StageID: synthesis.StageBaselineVerification,
			Score:   baseline.Score,
			Usable:  true,
		})
		signals.BaselineUnaudited = !baseline.Audited
		signals.BaselineMismatch = baseline.Mismatch
	}

	var bench benchmark.Result
	if err := in.Decode(pipeline.StagePeerBenchmark, &bench); err == nil {
		scores = append(scores, synthesis.StageScore{
			StageID:  synthesis.StagePeerBenchmark,
			Score:    bench.Score,
			Usable:   true,
			Degraded: bench.AvailableLayers < len(bench.Layers),
		})
		signals.InsufficientPeerSample = bench.InsufficientSample
		signals.Extrapolated = bench.AnyExtrapolated
		if bench.PathwayAvailable {
			signals.PathwayAvailable = true
			signals.PathwayGap = bench.PathwayGap
		}
	}

	var governance GovernanceOutput
	if err := in.Decode(pipeline.StageGovernance, &governance); err == nil {
		scores = append(scores, synthesis.StageScore{
			StageID: synthesis.StageGovernance,
			Score:   governance.Score,
			Usable:  true,
		})
		signals.StrongGovernance = governance.Strong
	}

	var capex CapexOutput
	if err := in.Decode(pipeline.StageCapexCredibility, &capex); err == nil {
		scores = append(scores, synthesis.StageScore{
			StageID: synthesis.StageCapexCredibility,
			Score:   capex.Score,
			Usable:  true,
		})
		signals.CapexBacked = capex.Backed
	}

	var track TrackRecordOutput
	if err := in.Decode(pipeline.StageTrackRecord, &track); err == nil {
		signals.TrackRecordPerfect = track.Perfect && track.Disclosed > 0
		signals.TrackRecordPoor = track.Poor
	}

	var science ScienceOutput
	if err := in.Decode(pipeline.StageScienceAlignment, &science); err == nil && science.Available {
		scores = append(scores, synthesis.StageScore{
			StageID: synthesis.StageScienceAlignment,
			Score:   science.Score,
			Usable:  true,
		})
		if !signals.PathwayAvailable {
			signals.PathwayAvailable = true
			signals.PathwayGap = science.Gap
		}
	}

	var risk AchievabilityOutput
	if err := in.Decode(pipeline.StageAchievabilityRisk, &risk); err == nil {
		scores = append(scores, synthesis.StageScore{
			StageID: synthesis.StageAchievabilityRisk,
			Score:   risk.Score,
			Usable:  true,
		})
	}

	return scores, signals
}
