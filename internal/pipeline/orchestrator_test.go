package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"kpieval-backend/internal/evaluations"
)

// scriptedStage returns canned outputs or errors per stage id.
type scriptedStage struct {
	id  string
	run func(ctx context.Context, in Inputs) (any, error)
}

func (s *scriptedStage) ID() string { return s.id }

func (s *scriptedStage) Run(ctx context.Context, in Inputs) (any, error) {
	if s.run == nil {
		return map[string]string{"stage": s.id}, nil
	}
	return s.run(ctx, in)
}

type stageOverrides map[string]func(ctx context.Context, in Inputs) (any, error)

func newTestOrchestrator(t *testing.T, repo evaluations.Repo, overrides stageOverrides) *Orchestrator {
	t.Helper()
	defs := DefaultStageDefs()
	stages := make([]Stage, 0, len(defs))
	for _, def := range defs {
		stages = append(stages, &scriptedStage{id: def.ID, run: overrides[def.ID]})
	}

	policy := DefaultPolicy()
	policy.BackoffBase = time.Millisecond

	registry, err := NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	orch, err := NewOrchestrator(repo, registry, stages, policy, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func seedEvaluation(t *testing.T, repo evaluations.Repo) evaluations.Evaluation {
	t.Helper()
	eval := evaluations.Evaluation{
		ID:     "eval-1",
		Status: evaluations.StatusPending,
		Request: evaluations.EvaluationRequest{
			Company: evaluations.CompanyProfile{Name: "Acme Chemicals", SectorCode: "C20", Region: "EU", SizeBand: "mid", AnnualRevenueM: 420},
			Target: evaluations.KPITarget{
				Metric: "ghg_intensity_reduction_pct", TargetValue: 10, Unit: "%",
				BaselineValue: 100, BaselineYear: 2023, StartYear: 2024, EndYear: 2030,
			},
		},
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	entry := evaluations.NewEvaluationAudit(evaluations.SubjectEvaluation, evaluations.FactSubmitted, "submitted", "", nil)
	if err := repo.Create(context.Background(), eval, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return eval
}

func synthesisOutput() func(ctx context.Context, in Inputs) (any, error) {
	return func(ctx context.Context, in Inputs) (any, error) {
		return evaluations.FinalAssessment{
			Category:       evaluations.CategoryAmbitious,
			CompositeScore: 82,
			Confidence:     95,
			Recommendation: evaluations.RecommendationFull,
		}, nil
	}
}

func TestRunCompletesCleanPipeline(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)
	orch := newTestOrchestrator(t, repo, stageOverrides{StageSynthesis: synthesisOutput()})

	if err := orch.Run(context.Background(), "eval-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	eval, err := repo.GetByID(context.Background(), "eval-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if eval.Status != evaluations.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", eval.Status)
	}
	if len(eval.Stages) != 9 {
		t.Fatalf("stage results = %d, want 9", len(eval.Stages))
	}
	for id, result := range eval.Stages {
		if result.Status != evaluations.StageSucceeded {
			t.Fatalf("stage %s status = %s, want SUCCEEDED", id, result.Status)
		}
	}
	if eval.Assessment == nil || eval.Assessment.CompositeScore != 82 {
		t.Fatalf("assessment not attached: %+v", eval.Assessment)
	}
}

func TestRunBestEffortFailureYieldsPartial(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)
	orch := newTestOrchestrator(t, repo, stageOverrides{
		StageCapexCredibility: func(ctx context.Context, in Inputs) (any, error) {
			return nil, Permanentf("capex plan unreadable")
		},
		StageSynthesis: synthesisOutput(),
	})

	if err := orch.Run(context.Background(), "eval-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	eval, _ := repo.GetByID(context.Background(), "eval-1")
	if eval.Status != evaluations.StatusPartial {
		t.Fatalf("status = %s, want PARTIAL", eval.Status)
	}
	capex := eval.Stages[StageCapexCredibility]
	if capex.Status != evaluations.StageFailed {
		t.Fatalf("capex status = %s, want FAILED", capex.Status)
	}
	if capex.Attempts != 1 {
		t.Fatalf("permanent failure attempts = %d, want 1 (no retries)", capex.Attempts)
	}
	if capex.Error == nil || capex.Error.Kind != string(KindPermanent) {
		t.Fatalf("capex error = %+v, want PERMANENT", capex.Error)
	}
	// Dependent best-effort stage still ran.
	if eval.Stages[StageAchievabilityRisk].Status != evaluations.StageSucceeded {
		t.Fatalf("achievability_risk = %s, want SUCCEEDED", eval.Stages[StageAchievabilityRisk].Status)
	}
	if eval.Assessment == nil {
		t.Fatal("partial evaluation should still carry an assessment")
	}
}

func TestRunCriticalFailureCascades(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)
	orch := newTestOrchestrator(t, repo, stageOverrides{
		StageDocumentIngestion: func(ctx context.Context, in Inputs) (any, error) {
			return nil, Permanentf("unsupported document format")
		},
	})

	if err := orch.Run(context.Background(), "eval-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	eval, _ := repo.GetByID(context.Background(), "eval-1")
	if eval.Status != evaluations.StatusFailed {
		t.Fatalf("status = %s, want FAILED", eval.Status)
	}
	if eval.Assessment != nil {
		t.Fatal("failed evaluation must not carry an assessment")
	}
	if eval.Stages[StageDocumentIngestion].Status != evaluations.StageFailed {
		t.Fatal("ingestion should be FAILED")
	}
	for _, id := range []string{
		StageBaselineVerification, StageGovernance, StageCapexCredibility, StageTrackRecord,
		StagePeerBenchmark, StageScienceAlignment, StageAchievabilityRisk, StageSynthesis,
	} {
		if eval.Stages[id].Status != evaluations.StageSkipped {
			t.Fatalf("stage %s = %s, want SKIPPED", id, eval.Stages[id].Status)
		}
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)

	calls := 0
	orch := newTestOrchestrator(t, repo, stageOverrides{
		StagePeerBenchmark: func(ctx context.Context, in Inputs) (any, error) {
			calls++
			if calls < 3 {
				return nil, Transientf("upstream 503")
			}
			return map[string]float64{"score": 65}, nil
		},
		StageSynthesis: synthesisOutput(),
	})

	if err := orch.Run(context.Background(), "eval-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	eval, _ := repo.GetByID(context.Background(), "eval-1")
	bench := eval.Stages[StagePeerBenchmark]
	if bench.Status != evaluations.StageSucceeded {
		t.Fatalf("peer_benchmark = %s, want SUCCEEDED after retries", bench.Status)
	}
	if bench.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", bench.Attempts)
	}
	if eval.Status != evaluations.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", eval.Status)
	}
}

func TestRunSchedulesOnCompletionNotRounds(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)

	benchStarted := make(chan struct{})
	orch := newTestOrchestrator(t, repo, stageOverrides{
		// Holds a worker until a stage from the next tier starts. If the
		// scheduler waited for the whole tier to finish before releasing
		// dependents, peer_benchmark could never start and this stage
		// would time out.
		StageGovernance: func(ctx context.Context, in Inputs) (any, error) {
			select {
			case <-benchStarted:
				return map[string]string{"stage": StageGovernance}, nil
			case <-time.After(5 * time.Second):
				return nil, Permanentf("dependent stage never started")
			}
		},
		StagePeerBenchmark: func(ctx context.Context, in Inputs) (any, error) {
			close(benchStarted)
			return map[string]float64{"score": 65}, nil
		},
		StageSynthesis: synthesisOutput(),
	})

	if err := orch.Run(context.Background(), "eval-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	eval, _ := repo.GetByID(context.Background(), "eval-1")
	if eval.Status != evaluations.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED (stages unblocked mid-flight must start immediately)", eval.Status)
	}
}

func TestRunRejectsRunningAndTerminal(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	eval := seedEvaluation(t, repo)
	orch := newTestOrchestrator(t, repo, nil)

	entry := evaluations.NewEvaluationAudit(evaluations.SubjectEvaluation, evaluations.FactRunStarted, "", "", nil)
	if _, err := repo.UpdateStatus(context.Background(), eval.ID, eval.Version, evaluations.StatusRunning, nil, entry); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := orch.Run(context.Background(), eval.ID); !errors.Is(err, evaluations.ErrAlreadyRunning) {
		t.Fatalf("running eval error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunIdempotentOnTerminal(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)
	orch := newTestOrchestrator(t, repo, stageOverrides{StageSynthesis: synthesisOutput()})

	if err := orch.Run(context.Background(), "eval-1"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, _ := repo.GetByID(context.Background(), "eval-1")

	if err := orch.Run(context.Background(), "eval-1"); !errors.Is(err, evaluations.ErrTerminal) {
		t.Fatalf("second Run error = %v, want ErrTerminal", err)
	}
	second, _ := repo.GetByID(context.Background(), "eval-1")
	if second.Version != first.Version {
		t.Fatal("second run mutated a terminal evaluation")
	}
}

func TestRunAuditTrailReplays(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)
	orch := newTestOrchestrator(t, repo, stageOverrides{
		StageGovernance: func(ctx context.Context, in Inputs) (any, error) {
			return nil, Permanentf("no governance disclosures")
		},
		StageSynthesis: synthesisOutput(),
	})

	if err := orch.Run(context.Background(), "eval-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	eval, _ := repo.GetByID(context.Background(), "eval-1")
	entries, err := repo.ListAudit(context.Background(), "eval-1")
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}

	// submitted + run_started + 9 stage entries + finalized.
	if len(entries) != 12 {
		t.Fatalf("audit entries = %d, want 12", len(entries))
	}
	for i, entry := range entries {
		if entry.Seq != int64(i+1) {
			t.Fatalf("entry %d has seq %d, want contiguous", i, entry.Seq)
		}
	}

	replayed, err := evaluations.ReplayStageResults(entries)
	if err != nil {
		t.Fatalf("ReplayStageResults: %v", err)
	}
	if len(replayed) != len(eval.Stages) {
		t.Fatalf("replayed %d stages, stored %d", len(replayed), len(eval.Stages))
	}
	for id, stored := range eval.Stages {
		got := replayed[id]
		storedJSON, _ := json.Marshal(stored)
		gotJSON, _ := json.Marshal(got)
		if string(storedJSON) != string(gotJSON) {
			t.Fatalf("stage %s replay mismatch:\nstored %s\nreplay %s", id, storedJSON, gotJSON)
		}
	}
}

func TestRunCancellationRevertsToPending(t *testing.T) {
	repo := evaluations.NewMemoryRepo()
	seedEvaluation(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	orch := newTestOrchestrator(t, repo, stageOverrides{
		StageDocumentIngestion: func(ctx context.Context, in Inputs) (any, error) {
			cancel()
			return map[string]string{"stage": StageDocumentIngestion}, nil
		},
	})

	if err := orch.Run(ctx, "eval-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}

	eval, _ := repo.GetByID(context.Background(), "eval-1")
	if eval.Status != evaluations.StatusPending {
		t.Fatalf("status after cancellation = %s, want PENDING", eval.Status)
	}
}
