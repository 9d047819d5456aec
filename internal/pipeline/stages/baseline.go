package stages

import (
	"context"
	"math"

	"kpieval-backend/internal/pipeline"
)

// baselineMismatchTolerancePct is the accepted relative deviation between
// the declared baseline and the documentary evidence.
const baselineMismatchTolerancePct = 5.0

// BaselineVerification checks the declared baseline against the evidence
// extracted from the submitted documents. It is critical: an unverifiable
// baseline invalidates every downstream comparison.
type BaselineVerification struct{}

func (s *BaselineVerification) ID() string { return pipeline.StageBaselineVerification }

func (s *BaselineVerification) Run(ctx context.Context, in pipeline.Inputs) (any, error) {
	var ingestion IngestionOutput
	if err := in.Decode(pipeline.StageDocumentIngestion, &ingestion); err != nil {
		return nil, pipeline.Permanentf("missing ingestion output: %v", err)
	}

	target := in.Evaluation.Request.Target
	out := BaselineOutput{DeclaredBaseline: target.BaselineValue}

	for _, extraction := range ingestion.Extractions {
		if extraction.BaselineValue != nil && !out.EvidenceFound {
			out.EvidenceFound = true
			out.EvidenceBaseline = *extraction.BaselineValue
		}
		if extraction.BaselineAudited != nil && *extraction.BaselineAudited {
			out.Audited = true
		}
	}

	switch {
	case !out.EvidenceFound:
		// No documentary evidence: fall back on the declared figure at
		// a sharply reduced score.
		out.Score = 40
	default:
		out.MismatchPct = relativeDeviationPct(target.BaselineValue, out.EvidenceBaseline)
		out.Mismatch = out.MismatchPct > baselineMismatchTolerancePct
		switch {
		case out.Mismatch:
			out.Score = 25
		case out.Audited:
			out.Score = 95
		default:
			out.Score = 70
		}
	}
	return out, nil
}

func relativeDeviationPct(declared, evidence float64) float64 {
	if evidence == 0 {
		if declared == 0 {
			return 0
		}
		return 100
	}
	return math.Abs(declared-evidence) / math.Abs(evidence) * 100
}
