// Package report assembles the banker-facing evaluation report and
// archives evaluation artifacts.
package report

import (
	"time"

	"kpieval-backend/internal/evaluations"
)

// StageSection is one stage's slice of the report.
type StageSection struct {
	StageID     string                  `json:"stageId"`
	Status      evaluations.StageStatus `json:"status"`
	Attempts    int                     `json:"attempts"`
	Error       *evaluations.StageError `json:"error,omitempty"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
}

// Report is the full evaluation report returned to the banker once the
// evaluation reaches a terminal status.
type Report struct {
	EvaluationID string                        `json:"evaluationId"`
	GeneratedAt  time.Time                     `json:"generatedAt"`
	Status       evaluations.Status            `json:"status"`
	Company      evaluations.CompanyProfile    `json:"company"`
	Target       evaluations.KPITarget         `json:"target"`
	Assessment   *evaluations.FinalAssessment  `json:"assessment,omitempty"`
	Stages       []StageSection                `json:"stages"`
	AuditTrail   []evaluations.AuditEntry      `json:"auditTrail"`
}

// Build assembles a Report from a terminal evaluation and its audit
// trail. Stage sections come out in stable order.
func Build(eval evaluations.Evaluation, trail []evaluations.AuditEntry) Report {
	r := Report{
		EvaluationID: eval.ID,
		GeneratedAt:  time.Now().UTC(),
		Status:       eval.Status,
		Company:      eval.Request.Company,
		Target:       eval.Request.Target,
		Assessment:   eval.Assessment,
		AuditTrail:   trail,
	}
	for _, id := range sortedStageIDs(eval.Stages) {
		result := eval.Stages[id]
		r.Stages = append(r.Stages, StageSection{
			StageID:     result.StageID,
			Status:      result.Status,
			Attempts:    result.Attempts,
			Error:       result.Error,
			CompletedAt: result.CompletedAt,
		})
	}
	return r
}
