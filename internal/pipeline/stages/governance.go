package stages

import (
	"context"
	"sort"

	"kpieval-backend/internal/pipeline"
)

// Governance signal weights. Unknown signals carry no weight but are
// still reported for the audit trail.
var governanceSignalWeights = map[string]float64{
	"board_oversight":      35,
	"executive_incentives": 30,
	"public_commitment":    20,
	"dedicated_team":       15,
}

// governanceStrongAt marks the score from which governance counts as a
// green flag.
const governanceStrongAt = 70.0

// Governance scores the company's sustainability governance from the
// signals found in its disclosures.
type Governance struct{}

func (s *Governance) ID() string { return pipeline.StageGovernance }

func (s *Governance) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	var ingestion IngestionOutput
	if err := in.Decode(pipeline.StageDocumentIngestion, &ingestion); err != nil {
		return nil, pipeline.Permanentf("missing ingestion output: %v", err)
	}

	seen := map[string]bool{}
	out := GovernanceOutput{}
	for _, extraction := range ingestion.Extractions {
		for _, signal := range extraction.GovernanceSignals {
			if seen[signal] {
				continue
			}
			seen[signal] = true
			out.Signals = append(out.Signals, signal)
			out.Score += governanceSignalWeights[signal]
		}
	}
	sort.Strings(out.Signals)
	if out.Score > 100 {
		out.Score = 100
	}
	out.Strong = out.Score >= governanceStrongAt
	return out, nil
}
