package evaluations

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newSubmission(id string) (Evaluation, AuditEntry) {
	now := time.Now().UTC()
	eval := Evaluation{
		ID:     id,
		Status: StatusPending,
		Request: EvaluationRequest{
			Company: CompanyProfile{Name: "Acme Chemicals", SectorCode: "C20", Region: "EU", SizeBand: "mid"},
			Target:  KPITarget{Metric: "ghg_intensity_reduction_pct", TargetValue: 10, BaselineValue: 100, BaselineYear: 2023, StartYear: 2024, EndYear: 2030},
			Documents: []DocumentRef{
				{ID: "doc-1", Type: "sustainability_report", URI: "s3://docs/doc-1"},
			},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := NewEvaluationAudit(SubjectEvaluation, FactSubmitted, "evaluation submitted", "", nil)
	return eval, entry
}

func TestMemoryRepoCreateAndGet(t *testing.T) {
	repo := NewMemoryRepo()
	eval, entry := newSubmission("eval-1")

	if err := repo.Create(context.Background(), eval, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(context.Background(), "eval-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusPending || got.Version != 1 {
		t.Fatalf("unexpected evaluation: %+v", got)
	}

	if _, err := repo.GetByID(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id error = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepoGetReturnsCopy(t *testing.T) {
	repo := NewMemoryRepo()
	eval, entry := newSubmission("eval-1")
	if err := repo.Create(context.Background(), eval, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), "eval-1")
	got.Request.Company.Name = "mutated"
	got.Stages["injected"] = StageResult{StageID: "injected"}

	fresh, _ := repo.GetByID(context.Background(), "eval-1")
	if fresh.Request.Company.Name != "Acme Chemicals" {
		t.Fatal("mutation of a returned copy leaked into the store")
	}
	if len(fresh.Stages) != 0 {
		t.Fatal("stage map mutation leaked into the store")
	}
}

func TestMemoryRepoVersionConflict(t *testing.T) {
	repo := NewMemoryRepo()
	eval, entry := newSubmission("eval-1")
	if err := repo.Create(context.Background(), eval, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result := StageResult{StageID: "document_ingestion", Status: StageSucceeded, Output: json.RawMessage(`{}`)}
	updated, err := repo.UpdateStageResult(context.Background(), "eval-1", 1, result, NewStageAudit(result, "ok", ""))
	if err != nil {
		t.Fatalf("UpdateStageResult: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}

	// Writing with the stale version must fail without side effects.
	stale := StageResult{StageID: "baseline_verification", Status: StageSucceeded}
	if _, err := repo.UpdateStageResult(context.Background(), "eval-1", 1, stale, NewStageAudit(stale, "", "")); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale write error = %v, want ErrVersionConflict", err)
	}
	fresh, _ := repo.GetByID(context.Background(), "eval-1")
	if _, ok := fresh.Stages["baseline_verification"]; ok {
		t.Fatal("stale write left a stage result behind")
	}
	trail, _ := repo.ListAudit(context.Background(), "eval-1")
	if len(trail) != 2 {
		t.Fatalf("audit entries = %d, want 2 (stale write must not audit)", len(trail))
	}
}

func TestMemoryRepoTerminalGuard(t *testing.T) {
	repo := NewMemoryRepo()
	eval, entry := newSubmission("eval-1")
	if err := repo.Create(context.Background(), eval, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	final := NewEvaluationAudit(SubjectSynthesis, FactFinalized, "done", "", nil)
	updated, err := repo.UpdateStatus(context.Background(), "eval-1", 1, StatusCompleted, nil, final)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if _, err := repo.UpdateStatus(context.Background(), "eval-1", updated.Version, StatusRunning, nil, final); !errors.Is(err, ErrTerminal) {
		t.Fatalf("terminal mutation error = %v, want ErrTerminal", err)
	}

	// Audit appends stay allowed on terminal evaluations.
	decision := NewEvaluationAudit(SubjectDecision, FactBankerDecision, "accepted", "", nil)
	if err := repo.AppendAudit(context.Background(), "eval-1", decision); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}

func TestMemoryRepoAuditSequencing(t *testing.T) {
	repo := NewMemoryRepo()
	eval, entry := newSubmission("eval-1")
	if err := repo.Create(context.Background(), eval, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := repo.AppendAudit(context.Background(), "eval-1", NewEvaluationAudit(SubjectEvaluation, FactRunStarted, "", "", nil)); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	trail, err := repo.ListAudit(context.Background(), "eval-1")
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	for i, entry := range trail {
		if entry.Seq != int64(i+1) {
			t.Fatalf("seq at index %d = %d, want %d", i, entry.Seq, i+1)
		}
	}
}

func TestMemoryRepoListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Now().UTC()
	for i, id := range []string{"eval-a", "eval-b", "eval-c"} {
		eval, entry := newSubmission(id)
		eval.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(context.Background(), eval, entry); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	got, err := repo.List(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "eval-c" || got[1].ID != "eval-b" {
		t.Fatalf("unexpected page: %+v", got)
	}

	rest, err := repo.List(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("List offset: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "eval-a" {
		t.Fatalf("unexpected second page: %+v", rest)
	}
}
