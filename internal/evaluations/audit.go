package evaluations

import (
	"encoding/json"
	"fmt"
	"time"
)

// Audit subjects for entries not tied to a single stage.
const (
	SubjectEvaluation = "evaluation"
	SubjectSynthesis  = "synthesis"
	SubjectDecision   = "decision"
)

// Audit facts. Fact is a machine tag; Rationale carries the prose.
const (
	FactSubmitted      = "evaluation_submitted"
	FactRunStarted     = "run_started"
	FactRunInterrupted = "run_interrupted"
	FactStageSucceeded = "stage_succeeded"
	FactStageFailed    = "stage_failed"
	FactStageSkipped   = "stage_skipped"
	FactFinalized      = "evaluation_finalized"
	FactBankerDecision = "banker_decision"
)

// AuditEntry is one immutable line of the evaluation's audit trail.
// Entries are append-only; a correction is a new entry whose Supersedes
// points at the superseded sequence number.
type AuditEntry struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Subject   string          `json:"subject"`
	Fact      string          `json:"fact"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Rationale string          `json:"rationale,omitempty"`
	InputHash string          `json:"inputHash,omitempty"`
	Supersedes int64          `json:"supersedes,omitempty"`
}

// NewStageAudit builds the audit entry recorded alongside a stage result.
// The stage result itself is embedded as the structured detail so the
// trail can be replayed.
func NewStageAudit(result StageResult, rationale, inputHash string) AuditEntry {
	fact := FactStageSucceeded
	switch result.Status {
	case StageFailed:
		fact = FactStageFailed
	case StageSkipped:
		fact = FactStageSkipped
	}
	detail, _ := json.Marshal(result)
	return AuditEntry{
		Timestamp: time.Now().UTC(),
		Subject:   result.StageID,
		Fact:      fact,
		Detail:    detail,
		Rationale: rationale,
		InputHash: inputHash,
	}
}

// NewEvaluationAudit builds an evaluation-level audit entry.
func NewEvaluationAudit(subject, fact, rationale, inputHash string, detail any) AuditEntry {
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Fact:      fact,
		Rationale: rationale,
		InputHash: inputHash,
	}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			entry.Detail = raw
		}
	}
	return entry
}

// ReplayStageResults folds an audit trail back into the stage result map it
// recorded. For any terminal evaluation this must reconstruct the stored
// map exactly.
func ReplayStageResults(entries []AuditEntry) (map[string]StageResult, error) {
	out := make(map[string]StageResult)
	for _, entry := range entries {
		switch entry.Fact {
		case FactStageSucceeded, FactStageFailed, FactStageSkipped:
		default:
			continue
		}
		var result StageResult
		if err := json.Unmarshal(entry.Detail, &result); err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", entry.Seq, err)
		}
		if result.StageID == "" {
			result.StageID = entry.Subject
		}
		out[result.StageID] = result
	}
	return out, nil
}
