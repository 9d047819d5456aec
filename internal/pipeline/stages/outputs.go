// Package stages holds the pipeline stage implementations. Each stage
// consumes the evaluation request plus its dependencies' outputs and
// produces one typed, JSON-encoded output.
package stages

import "kpieval-backend/internal/docintel"

// IngestionOutput carries everything the document intelligence service
// extracted, keyed for the downstream assessment stages.
type IngestionOutput struct {
	Extractions []docintel.Extraction `json:"extractions"`
	Processed   int                   `json:"processed"`
}

// BaselineOutput is the baseline verification verdict.
type BaselineOutput struct {
	Score            float64 `json:"score"`
	EvidenceFound    bool    `json:"evidenceFound"`
	Audited          bool    `json:"audited"`
	DeclaredBaseline float64 `json:"declaredBaseline"`
	EvidenceBaseline float64 `json:"evidenceBaseline,omitempty"`
	MismatchPct      float64 `json:"mismatchPct,omitempty"`
	Mismatch         bool    `json:"mismatch"`
}

// GovernanceOutput scores the company's sustainability governance.
type GovernanceOutput struct {
	Score   float64  `json:"score"`
	Signals []string `json:"signals"`
	Strong  bool     `json:"strong"`
}

// CapexOutput scores how credibly capital expenditure backs the target.
type CapexOutput struct {
	Score           float64 `json:"score"`
	CommitmentM     float64 `json:"commitmentM"`
	RevenueRatioPct float64 `json:"revenueRatioPct"`
	Backed          bool    `json:"backed"`
}

// TrackRecordOutput scores historical target delivery.
type TrackRecordOutput struct {
	Score     float64 `json:"score"`
	Disclosed int     `json:"disclosed"`
	Met       int     `json:"met"`
	Perfect   bool    `json:"perfect"`
	Poor      bool    `json:"poor"`
}

// ScienceOutput compares the target against the sector pathway.
type ScienceOutput struct {
	Score       float64 `json:"score"`
	Requirement float64 `json:"requirement,omitempty"`
	Gap         float64 `json:"gap"`
	Aligned     bool    `json:"aligned"`
	Available   bool    `json:"available"`
}

// AchievabilityOutput combines delivery-risk signals into one score.
type AchievabilityOutput struct {
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components"`
}
