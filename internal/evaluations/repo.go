package evaluations

import "context"

// Repo defines persistence operations for evaluations. Each mutation
// persists the evaluation change and its audit entry atomically: both
// happen or neither. expectedVersion enforces optimistic concurrency;
// a mismatch returns ErrVersionConflict without side effects.
type Repo interface {
	Create(ctx context.Context, eval Evaluation, entry AuditEntry) error
	GetByID(ctx context.Context, id string) (Evaluation, error)
	List(ctx context.Context, limit, offset int) ([]Evaluation, error)
	UpdateStageResult(ctx context.Context, id string, expectedVersion int64, result StageResult, entry AuditEntry) (Evaluation, error)
	UpdateStatus(ctx context.Context, id string, expectedVersion int64, status Status, assessment *FinalAssessment, entry AuditEntry) (Evaluation, error)
	AppendAudit(ctx context.Context, id string, entry AuditEntry) error
	ListAudit(ctx context.Context, id string) ([]AuditEntry, error)
}
