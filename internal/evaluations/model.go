package evaluations

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an Evaluation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPartial   Status = "PARTIAL"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status is final. Terminal evaluations are
// immutable except for audit appends.
func (s Status) Terminal() bool {
	return s == StatusPartial || s == StatusCompleted || s == StatusFailed
}

// StageStatus is the lifecycle state of a single pipeline stage.
type StageStatus string

const (
	StagePending   StageStatus = "PENDING"
	StageRunning   StageStatus = "RUNNING"
	StageSucceeded StageStatus = "SUCCEEDED"
	StageFailed    StageStatus = "FAILED"
	StageSkipped   StageStatus = "SKIPPED"
)

// Terminal reports whether the stage status is final.
func (s StageStatus) Terminal() bool {
	return s == StageSucceeded || s == StageFailed || s == StageSkipped
}

// CompanyProfile identifies the borrower.
type CompanyProfile struct {
	Name           string  `json:"name"`
	SectorCode     string  `json:"sectorCode"`
	Region         string  `json:"region"`
	SizeBand       string  `json:"sizeBand"`
	AnnualRevenueM float64 `json:"annualRevenueM"`
}

// KPITarget is the proposed sustainability target under evaluation.
type KPITarget struct {
	Metric           string  `json:"metric"`
	TargetValue      float64 `json:"targetValue"`
	Unit             string  `json:"unit"`
	BaselineValue    float64 `json:"baselineValue"`
	BaselineUnit     string  `json:"baselineUnit"`
	BaselineYear     int     `json:"baselineYear"`
	StartYear        int     `json:"startYear"`
	EndYear          int     `json:"endYear"`
	BaselineVerified bool    `json:"baselineVerified"`
}

// DocumentRef points at a submitted document held by the document
// intelligence collaborator.
type DocumentRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// EvaluationRequest is the immutable submission that seeds an evaluation.
type EvaluationRequest struct {
	Company   CompanyProfile `json:"company"`
	Target    KPITarget      `json:"target"`
	Documents []DocumentRef  `json:"documents"`
}

// StageError describes why a stage failed.
type StageError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StageResult is the whole-record outcome of one stage. It is only ever
// replaced atomically, never mutated field by field.
type StageResult struct {
	StageID     string          `json:"stageId"`
	Status      StageStatus     `json:"status"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       *StageError     `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// WeightContribution explains one stage's share of the composite score.
type WeightContribution struct {
	StageID  string  `json:"stageId"`
	Weight   float64 `json:"weight"`
	Score    float64 `json:"score"`
	Degraded bool    `json:"degraded"`
}

// Assessment categories.
const (
	CategoryWeak      = "WEAK"
	CategoryModerate  = "MODERATE"
	CategoryAmbitious = "AMBITIOUS"
)

// Lending recommendations.
const (
	RecommendationReject      = "REJECT"
	RecommendationConditional = "CONDITIONAL_APPROVAL"
	RecommendationFull        = "FULL_APPROVAL"
)

// FinalAssessment is the synthesized lending recommendation.
type FinalAssessment struct {
	Category             string               `json:"category"`
	CompositeScore       float64              `json:"compositeScore"`
	Confidence           float64              `json:"confidence"`
	Recommendation       string               `json:"recommendation"`
	PricingAdjustmentBps int                  `json:"pricingAdjustmentBps"`
	RedFlags             []string             `json:"redFlags"`
	GreenFlags           []string             `json:"greenFlags"`
	WeightBreakdown      []WeightContribution `json:"weightBreakdown"`
}

// Evaluation is the aggregate root. It is exclusively owned and mutated by
// the orchestrator; every mutation bumps Version and must supply the
// version it read (optimistic concurrency).
type Evaluation struct {
	ID         string                 `json:"id"`
	Request    EvaluationRequest      `json:"request"`
	Status     Status                 `json:"status"`
	Stages     map[string]StageResult `json:"stages"`
	Assessment *FinalAssessment       `json:"assessment,omitempty"`
	Version    int64                  `json:"version"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (e Evaluation) Clone() Evaluation {
	out := e
	if e.Stages != nil {
		out.Stages = make(map[string]StageResult, len(e.Stages))
		for id, sr := range e.Stages {
			out.Stages[id] = sr.clone()
		}
	}
	if e.Assessment != nil {
		assessment := *e.Assessment
		assessment.RedFlags = append([]string(nil), e.Assessment.RedFlags...)
		assessment.GreenFlags = append([]string(nil), e.Assessment.GreenFlags...)
		assessment.WeightBreakdown = append([]WeightContribution(nil), e.Assessment.WeightBreakdown...)
		out.Assessment = &assessment
	}
	out.Request.Documents = append([]DocumentRef(nil), e.Request.Documents...)
	return out
}

func (r StageResult) clone() StageResult {
	out := r
	out.Output = append(json.RawMessage(nil), r.Output...)
	if r.Error != nil {
		errCopy := *r.Error
		out.Error = &errCopy
	}
	if r.StartedAt != nil {
		ts := *r.StartedAt
		out.StartedAt = &ts
	}
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}
