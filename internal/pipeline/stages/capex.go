package stages

import (
	"context"

	"kpieval-backend/internal/pipeline"
)

// capexBackedRatioPct is the revenue share of committed capital
// expenditure from which a target counts as capex-backed.
const capexBackedRatioPct = 2.0

// CapexCredibility checks whether committed capital expenditure is
// commensurate with the proposed target.
type CapexCredibility struct{}

func (s *CapexCredibility) ID() string { return pipeline.StageCapexCredibility }

func (s *CapexCredibility) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	var ingestion IngestionOutput
	if err := in.Decode(pipeline.StageDocumentIngestion, &ingestion); err != nil {
		return nil, pipeline.Permanentf("missing ingestion output: %v", err)
	}

	out := CapexOutput{}
	for _, extraction := range ingestion.Extractions {
		if extraction.CapexCommitmentM != nil {
			out.CommitmentM += *extraction.CapexCommitmentM
		}
	}

	revenue := in.Evaluation.Request.Company.AnnualRevenueM
	if out.CommitmentM == 0 {
		// No committed spend disclosed: credible on paper only.
		out.Score = 20
		return out, nil
	}
	if revenue <= 0 {
		// Spend disclosed but no revenue to scale it against.
		out.Score = 50
		out.Backed = true
		return out, nil
	}

	out.RevenueRatioPct = out.CommitmentM / revenue * 100
	out.Backed = out.RevenueRatioPct >= capexBackedRatioPct
	out.Score = out.RevenueRatioPct * 10
	if out.Score > 100 {
		out.Score = 100
	}
	return out, nil
}
