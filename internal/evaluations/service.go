package evaluations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kpieval-backend/internal/queue"
	"kpieval-backend/internal/shared/telemetry"
	"kpieval-backend/internal/shared/util"
)

// Runner executes an evaluation pipeline to a terminal status.
type Runner interface {
	Run(ctx context.Context, evaluationID string) error
}

// Banker decision values recorded against a terminal evaluation.
const (
	DecisionAccepted   = "ACCEPTED"
	DecisionOverridden = "OVERRIDDEN"
)

// BankerDecision is the banker's final call on a terminal evaluation.
type BankerDecision struct {
	Decision  string `json:"decision"`
	Rationale string `json:"rationale"`
	DecidedBy string `json:"decidedBy"`
}

// Service contains business logic for evaluations. Submission runs the
// pipeline through the queue when one is configured, otherwise in a
// background goroutine on the Runner.
type Service struct {
	Repo   Repo
	Queue  queue.Client
	Runner Runner
}

// Submit validates and persists a new evaluation, then dispatches the
// pipeline run.
func (s *Service) Submit(ctx context.Context, req EvaluationRequest) (Evaluation, error) {
	if err := validateRequest(req); err != nil {
		return Evaluation{}, err
	}

	now := time.Now().UTC()
	eval := Evaluation{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := NewEvaluationAudit(SubjectEvaluation, FactSubmitted, "evaluation submitted", util.HashInputs(req), req)
	if err := s.Repo.Create(ctx, eval, entry); err != nil {
		return Evaluation{}, err
	}

	s.dispatch(ctx, eval)
	return eval, nil
}

// dispatch hands the evaluation to the pipeline. A queue send failure
// leaves the evaluation PENDING for a later retry rather than failing
// the submission.
func (s *Service) dispatch(ctx context.Context, eval Evaluation) {
	if s.Queue != nil {
		msg := queue.Message{
			EvaluationID: eval.ID,
			RequestID:    requestIDFromContext(ctx),
			EnqueuedAt:   time.Now().UTC().Format(time.RFC3339),
			Version:      1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Error("evaluations.enqueue_failed", map[string]any{
				"evaluation_id": eval.ID, "error": err.Error(),
			})
		}
		return
	}
	if s.Runner != nil {
		go func(ctx context.Context, id string) {
			if err := s.Runner.Run(ctx, id); err != nil {
				telemetry.Error("evaluations.run_failed", map[string]any{
					"evaluation_id": id, "error": err.Error(),
				})
			}
		}(backgroundWithRequestID(ctx), eval.ID)
	}
}

// Get returns one evaluation.
func (s *Service) Get(ctx context.Context, id string) (Evaluation, error) {
	return s.Repo.GetByID(ctx, id)
}

// List returns a page of evaluations, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Evaluation, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Terminal returns a terminal evaluation with its audit trail, for
// report assembly. A non-terminal evaluation yields ErrNotTerminal.
func (s *Service) Terminal(ctx context.Context, id string) (Evaluation, []AuditEntry, error) {
	eval, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Evaluation{}, nil, err
	}
	if !eval.Status.Terminal() {
		return Evaluation{}, nil, ErrNotTerminal
	}
	trail, err := s.Repo.ListAudit(ctx, id)
	if err != nil {
		return Evaluation{}, nil, err
	}
	return eval, trail, nil
}

// SubmitDecision appends the banker's decision to a terminal
// evaluation's audit trail. Overrides require a rationale.
func (s *Service) SubmitDecision(ctx context.Context, id string, decision BankerDecision) error {
	switch decision.Decision {
	case DecisionAccepted, DecisionOverridden:
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidRequest, decision.Decision)
	}
	if decision.Decision == DecisionOverridden && strings.TrimSpace(decision.Rationale) == "" {
		return fmt.Errorf("%w: an override requires a rationale", ErrInvalidRequest)
	}

	eval, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !eval.Status.Terminal() {
		return ErrNotTerminal
	}

	entry := NewEvaluationAudit(SubjectDecision, FactBankerDecision, decision.Rationale, util.HashInputs(decision), decision)
	return s.Repo.AppendAudit(ctx, id, entry)
}

func validateRequest(req EvaluationRequest) error {
	switch {
	case strings.TrimSpace(req.Company.Name) == "":
		return fmt.Errorf("%w: company name is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Company.SectorCode) == "":
		return fmt.Errorf("%w: sector code is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Target.Metric) == "":
		return fmt.Errorf("%w: target metric is required", ErrInvalidRequest)
	case req.Target.TargetValue <= 0:
		return fmt.Errorf("%w: target value must be positive", ErrInvalidRequest)
	case req.Target.EndYear <= req.Target.StartYear:
		return fmt.Errorf("%w: end year must follow start year", ErrInvalidRequest)
	case req.Target.BaselineYear > req.Target.StartYear:
		return fmt.Errorf("%w: baseline year cannot follow start year", ErrInvalidRequest)
	case len(req.Documents) == 0:
		return fmt.Errorf("%w: at least one document is required", ErrInvalidRequest)
	}
	for _, doc := range req.Documents {
		if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.Type) == "" {
			return fmt.Errorf("%w: document id and type are required", ErrInvalidRequest)
		}
	}
	return nil
}
