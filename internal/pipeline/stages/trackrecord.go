package stages

import (
	"context"

	"kpieval-backend/internal/pipeline"
)

// TrackRecord scores historical delivery against past sustainability
// targets disclosed in the documents.
type TrackRecord struct{}

func (s *TrackRecord) ID() string { return pipeline.StageTrackRecord }

func (s *TrackRecord) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	var ingestion IngestionOutput
	if err := in.Decode(pipeline.StageDocumentIngestion, &ingestion); err != nil {
		return nil, pipeline.Permanentf("missing ingestion output: %v", err)
	}

	out := TrackRecordOutput{}
	for _, extraction := range ingestion.Extractions {
		for _, past := range extraction.PastTargets {
			out.Disclosed++
			if past.Achieved {
				out.Met++
			}
		}
	}

	if out.Disclosed == 0 {
		// First-time target setter: neutral, neither flag.
		out.Score = 50
		return out, nil
	}

	rate := float64(out.Met) / float64(out.Disclosed)
	out.Score = rate * 100
	out.Perfect = out.Met == out.Disclosed
	out.Poor = out.Disclosed >= 2 && rate < 0.5
	return out, nil
}
