package docintel

import "context"

// StubClient serves canned extractions for dev environments without a
// configured document intelligence service. Evidence is keyed off the
// declared document type.
type StubClient struct{}

// NewStubClient constructs a StubClient.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// ExtractDocument returns a canned extraction for the reference.
func (s *StubClient) ExtractDocument(ctx context.Context, ref Ref) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	extraction := Extraction{DocumentID: ref.ID, DocType: ref.Type}
	switch ref.Type {
	case "sustainability_report":
		baseline := 100.0
		year := 2023
		extraction.BaselineValue = &baseline
		extraction.BaselineYear = &year
		extraction.GovernanceSignals = []string{"board_oversight", "sustainability_committee"}
		extraction.PastTargets = []PastTarget{
			{Metric: "ghg_intensity", Achieved: true},
			{Metric: "renewable_share", Achieved: true},
		}
	case "audit_statement":
		audited := true
		extraction.BaselineAudited = &audited
	case "capex_plan":
		capex := 45.0
		extraction.CapexCommitmentM = &capex
	}
	return extraction, nil
}

var _ Client = (*StubClient)(nil)
