package stages

import (
	"context"
	"errors"

	"kpieval-backend/internal/docintel"
	"kpieval-backend/internal/pipeline"
)

// Ingestion extracts structured evidence from every submitted document.
// It is the critical root of the pipeline: without evidence nothing
// downstream can be assessed.
type Ingestion struct {
	Client docintel.Client
}

func (s *Ingestion) ID() string { return pipeline.StageDocumentIngestion }

func (s *Ingestion) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	documents := in.Evaluation.Request.Documents
	if len(documents) == 0 {
		return nil, pipeline.Permanentf("no documents submitted")
	}

	out := IngestionOutput{Extractions: make([]docintel.Extraction, 0, len(documents))}
	for _, doc := range documents {
		extraction, err := s.Client.ExtractDocument(ctx, docintel.Ref{ID: doc.ID, Type: doc.Type, URI: doc.URI})
		if err != nil {
			if errors.Is(err, docintel.ErrUnsupportedFormat) {
				return nil, pipeline.Permanentf("document %s: %v", doc.ID, err)
			}
			return nil, pipeline.Transientf("document %s: %v", doc.ID, err)
		}
		out.Extractions = append(out.Extractions, extraction)
		out.Processed++
	}
	return out, nil
}
