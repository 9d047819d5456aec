package stages

import (
	"context"
	"errors"

	"kpieval-backend/internal/peerdata"
	"kpieval-backend/internal/pipeline"
)

// ScienceAlignment compares the target against the sector's science-based
// decarbonization pathway at the target horizon.
type ScienceAlignment struct {
	Provider peerdata.Provider
}

func (s *ScienceAlignment) ID() string { return pipeline.StageScienceAlignment }

func (s *ScienceAlignment) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	request := in.Evaluation.Request
	required, err := s.Provider.PathwayRequirement(ctx, request.Company.SectorCode, request.Target.EndYear)
	if err != nil {
		if errors.Is(err, peerdata.ErrInsufficientData) {
			// No pathway published for this sector: report the gap as
			// unknown rather than failing the stage.
			return ScienceOutput{}, nil
		}
		return nil, pipeline.Transient(err)
	}

	gap := request.Target.TargetValue - required
	score := 50 + gap*5
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return ScienceOutput{
		Score:       score,
		Requirement: required,
		Gap:         gap,
		Aligned:     gap >= 0,
		Available:   true,
	}, nil
}
