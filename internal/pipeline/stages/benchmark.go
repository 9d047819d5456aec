package stages

import (
	"context"

	"kpieval-backend/internal/benchmark"
	"kpieval-backend/internal/pipeline"
)

// PeerBenchmark runs the five-layer peer comparison. It depends on
// baseline verification only to ensure the target figure it benchmarks
// rests on a checked baseline.
type PeerBenchmark struct {
	Engine *benchmark.Engine
}

func (s *PeerBenchmark) ID() string { return pipeline.StagePeerBenchmark }

func (s *PeerBenchmark) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	request := in.Evaluation.Request
	result, err := s.Engine.ComputeLayers(ctx, benchmark.Input{
		SectorCode:  request.Company.SectorCode,
		SizeBand:    request.Company.SizeBand,
		Region:      request.Company.Region,
		Metric:      request.Target.Metric,
		Value:       request.Target.TargetValue,
		HorizonYear: request.Target.EndYear,
	})
	if err != nil {
		// Total provider outage; individual layer outages degrade
		// inside the engine instead.
		return nil, pipeline.Transient(err)
	}
	return result, nil
}
