package stages

import (
	"context"

	"kpieval-backend/internal/pipeline"
)

// Achievability component weights, renormalized over whichever upstream
// signals are actually available.
var achievabilityWeights = map[string]float64{
	pipeline.StageCapexCredibility: 0.40,
	pipeline.StageTrackRecord:      0.35,
	pipeline.StagePeerBenchmark:    0.25,
}

// AchievabilityRisk estimates delivery risk by combining capital backing,
// historical delivery and peer positioning. All three inputs are best
// effort; the stage runs on whatever subset survived.
type AchievabilityRisk struct{}

func (s *AchievabilityRisk) ID() string { return pipeline.StageAchievabilityRisk }

func (s *AchievabilityRisk) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	components := map[string]float64{}

	var capex CapexOutput
	if err := in.Decode(pipeline.StageCapexCredibility, &capex); err == nil {
		components[pipeline.StageCapexCredibility] = capex.Score
	}
	var track TrackRecordOutput
	if err := in.Decode(pipeline.StageTrackRecord, &track); err == nil {
		components[pipeline.StageTrackRecord] = track.Score
	}
	var bench struct {
		Score float64 `json:"score"`
	}
	if err := in.Decode(pipeline.StagePeerBenchmark, &bench); err == nil {
		// An aggressive peer position means more delivery risk, so the
		// benchmark contributes inverted.
		components[pipeline.StagePeerBenchmark] = 100 - bench.Score
	}

	if len(components) == 0 {
		return nil, pipeline.Permanentf("no upstream delivery-risk signals available")
	}

	var weightSum, weighted float64
	for id, score := range components {
		weight := achievabilityWeights[id]
		weightSum += weight
		weighted += weight * score
	}
	return AchievabilityOutput{
		Score:      weighted / weightSum,
		Components: components,
	}, nil
}
