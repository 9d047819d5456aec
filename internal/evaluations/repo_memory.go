package evaluations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores evaluations in memory and is safe for concurrent use.
// It mirrors the transactional guarantees of the Postgres repo: stage
// results and audit entries are applied under one lock acquisition.
type MemoryRepo struct {
	mu    sync.RWMutex
	byID  map[string]Evaluation
	audit map[string][]AuditEntry
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:  make(map[string]Evaluation),
		audit: make(map[string][]AuditEntry),
	}
}

// Create stores the evaluation together with its submission audit entry.
func (r *MemoryRepo) Create(ctx context.Context, eval Evaluation, entry AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if eval.Stages == nil {
		eval.Stages = make(map[string]StageResult)
	}
	r.byID[eval.ID] = eval.Clone()
	r.appendLocked(eval.ID, entry)
	return nil
}

// GetByID returns a deep copy of the evaluation.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	eval, ok := r.byID[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	return eval.Clone(), nil
}

// List returns evaluations newest first with limit/offset.
func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	r.mu.RLock()
	all := make([]Evaluation, 0, len(r.byID))
	for _, eval := range r.byID {
		all = append(all, eval.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []Evaluation{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// UpdateStageResult atomically replaces a stage result, appends the audit
// entry, and bumps the version.
func (r *MemoryRepo) UpdateStageResult(ctx context.Context, id string, expectedVersion int64, result StageResult, entry AuditEntry) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	eval, ok := r.byID[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	if eval.Version != expectedVersion {
		return Evaluation{}, ErrVersionConflict
	}
	if eval.Stages == nil {
		eval.Stages = make(map[string]StageResult)
	}
	eval.Stages[result.StageID] = result.clone()
	eval.Version++
	eval.UpdatedAt = time.Now().UTC()
	r.byID[id] = eval
	r.appendLocked(id, entry)
	return eval.Clone(), nil
}

// UpdateStatus atomically moves the evaluation to a new status, records the
// assessment if present, appends the audit entry, and bumps the version.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, expectedVersion int64, status Status, assessment *FinalAssessment, entry AuditEntry) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	eval, ok := r.byID[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	if eval.Version != expectedVersion {
		return Evaluation{}, ErrVersionConflict
	}
	if eval.Status.Terminal() {
		return Evaluation{}, ErrTerminal
	}
	eval.Status = status
	if assessment != nil {
		copied := *assessment
		eval.Assessment = &copied
	}
	eval.Version++
	eval.UpdatedAt = time.Now().UTC()
	r.byID[id] = eval
	r.appendLocked(id, entry)
	return eval.Clone(), nil
}

// AppendAudit records an audit entry without touching evaluation state.
// Used for banker decisions on terminal evaluations.
func (r *MemoryRepo) AppendAudit(ctx context.Context, id string, entry AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	r.appendLocked(id, entry)
	return nil
}

// ListAudit returns the audit trail ordered by sequence.
func (r *MemoryRepo) ListAudit(ctx context.Context, id string) ([]AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]AuditEntry(nil), r.audit[id]...), nil
}

func (r *MemoryRepo) appendLocked(id string, entry AuditEntry) {
	entry.Seq = int64(len(r.audit[id])) + 1
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.audit[id] = append(r.audit[id], entry)
}

var _ Repo = (*MemoryRepo)(nil)
