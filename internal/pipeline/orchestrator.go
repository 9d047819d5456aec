package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kpieval-backend/internal/evaluations"
	"kpieval-backend/internal/shared/metrics"
	"kpieval-backend/internal/shared/telemetry"
	"kpieval-backend/internal/shared/util"
)

// Inputs is what a stage sees: the immutable request plus the outputs of
// every stage that already succeeded.
type Inputs struct {
	Evaluation evaluations.Evaluation
	Outputs    map[string]json.RawMessage
}

// Decode unmarshals a dependency's output into v. Missing output means
// the dependency failed or was skipped.
func (in Inputs) Decode(stageID string, v any) error {
	raw, ok := in.Outputs[stageID]
	if !ok {
		return fmt.Errorf("no output from stage %s", stageID)
	}
	return json.Unmarshal(raw, v)
}

// Stage is one unit of pipeline work. Run returns a JSON-serializable
// output on success; failures are classified via the error wrappers in
// this package.
type Stage interface {
	ID() string
	Run(ctx context.Context, in Inputs) (any, error)
}

// Publisher receives terminal evaluations for report rendering and
// artifact archival. Publishing is best effort; failures never change
// the evaluation outcome.
type Publisher interface {
	Publish(ctx context.Context, eval evaluations.Evaluation) error
}

// Orchestrator owns evaluation runs: it walks the stage graph in
// dependency order, runs independent stages concurrently, retries
// transient failures, skips stages doomed by critical failures, and
// writes each transition with its audit entry in one atomic mutation.
type Orchestrator struct {
	repo      evaluations.Repo
	registry  *Registry
	stages    map[string]Stage
	policy    Policy
	publisher Publisher
}

// NewOrchestrator wires the orchestrator. Every registered stage must
// have an implementation; a gap is a configuration error.
func NewOrchestrator(repo evaluations.Repo, registry *Registry, stages []Stage, policy Policy, publisher Publisher) (*Orchestrator, error) {
	byID := make(map[string]Stage, len(stages))
	for _, stage := range stages {
		byID[stage.ID()] = stage
	}
	for _, id := range registry.Order() {
		if _, ok := byID[id]; !ok {
			return nil, ConfigurationError(fmt.Errorf("no implementation for stage %s", id))
		}
	}
	return &Orchestrator{repo: repo, registry: registry, stages: byID, policy: policy, publisher: publisher}, nil
}

// Run executes one evaluation to a terminal status. It refuses
// evaluations that are already running (ErrAlreadyRunning) or terminal
// (ErrTerminal). A canceled context reverts the evaluation to PENDING
// so a later run can resume it.
func (o *Orchestrator) Run(ctx context.Context, id string) error {
	eval, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case eval.Status == evaluations.StatusRunning:
		return evaluations.ErrAlreadyRunning
	case eval.Status.Terminal():
		return evaluations.ErrTerminal
	}

	entry := evaluations.NewEvaluationAudit(
		evaluations.SubjectEvaluation, evaluations.FactRunStarted,
		"pipeline run started", util.HashInputs(eval.Request), nil,
	)
	eval, err = o.repo.UpdateStatus(ctx, id, eval.Version, evaluations.StatusRunning, nil, entry)
	if err != nil {
		if errors.Is(err, evaluations.ErrVersionConflict) {
			return evaluations.ErrAlreadyRunning
		}
		return err
	}
	metrics.IncEvaluationStarted()
	telemetry.Info("pipeline.run_started", map[string]any{"evaluation_id": id})
	started := time.Now()

	workers := o.policy.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	// Buffered to the stage count so an in-flight stage can always report
	// its completion, even after the run has been interrupted.
	done := make(chan evaluations.StageResult, o.registry.Len())
	inFlight := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return o.interrupt(id, eval.Version, err)
		}

		eval, err = o.applySkips(ctx, eval)
		if err != nil {
			return err
		}

		o.launchReady(ctx, eval, inFlight, sem, done)
		if len(inFlight) == 0 {
			break
		}

		// Block only until the next completion. A stage released by it
		// starts on the following pass without waiting for the rest of
		// the in-flight set.
		select {
		case result := <-done:
			delete(inFlight, result.StageID)
			if err := ctx.Err(); err != nil {
				return o.interrupt(id, eval.Version, err)
			}
			eval, err = o.applyResult(ctx, eval, result)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return o.interrupt(id, eval.Version, ctx.Err())
		}
	}

	return o.finalize(ctx, eval, started)
}

// launchReady starts every runnable stage not already in flight, bounded
// by the worker semaphore. Each stage runs against a snapshot taken at
// launch, so later completions never mutate what a running stage sees.
func (o *Orchestrator) launchReady(ctx context.Context, eval evaluations.Evaluation, inFlight map[string]bool, sem chan struct{}, done chan<- evaluations.StageResult) {
	for _, stageID := range o.registry.ReadyStages(eval.Stages) {
		if inFlight[stageID] {
			continue
		}
		inFlight[stageID] = true
		snapshot := eval.Clone()
		outputs := succeededOutputs(snapshot)
		go func(stageID string) {
			sem <- struct{}{}
			defer func() { <-sem }()
			done <- o.executeStage(ctx, snapshot, outputs, stageID)
		}(stageID)
	}
}

// executeStage runs one stage with retries. Transient and timeout
// failures retry with exponential backoff up to the stage's attempt
// budget; permanent and configuration failures fail immediately.
func (o *Orchestrator) executeStage(ctx context.Context, eval evaluations.Evaluation, outputs map[string]json.RawMessage, stageID string) evaluations.StageResult {
	def, _ := o.registry.Def(stageID)
	stage := o.stages[stageID]
	in := Inputs{Evaluation: eval, Outputs: outputs}

	startedAt := time.Now().UTC()
	attempts := 0
	var output any

	operation := func() error {
		attempts++
		if attempts > 1 {
			metrics.IncStageRetry()
		}
		attemptCtx := ctx
		if def.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, def.Timeout)
			defer cancel()
		}
		out, err := stage.Run(attemptCtx, in)
		if err != nil {
			if !Retryable(KindOf(err)) {
				return backoff.Permanent(err)
			}
			return err
		}
		output = out
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.policy.BackoffBase
	runErr := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(def.MaxAttempts-1)), ctx,
	))

	completedAt := time.Now().UTC()
	metrics.ObserveStageDurationMs(float64(completedAt.Sub(startedAt).Milliseconds()))

	result := evaluations.StageResult{
		StageID:     stageID,
		Attempts:    attempts,
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
	}
	if runErr != nil {
		kind := KindOf(runErr)
		result.Status = evaluations.StageFailed
		result.Error = &evaluations.StageError{Kind: string(kind), Message: runErr.Error()}
		telemetry.Warn("pipeline.stage_failed", map[string]any{
			"evaluation_id": eval.ID, "stage": stageID, "kind": string(kind),
			"attempts": attempts, "error": runErr.Error(),
		})
		return result
	}

	raw, err := json.Marshal(output)
	if err != nil {
		result.Status = evaluations.StageFailed
		result.Error = &evaluations.StageError{Kind: string(KindPermanent), Message: fmt.Sprintf("encode output: %v", err)}
		return result
	}
	result.Status = evaluations.StageSucceeded
	result.Output = raw
	return result
}

// applyResult persists one stage result with its audit entry. A version
// conflict means another writer touched the evaluation; the run aborts
// rather than guess.
func (o *Orchestrator) applyResult(ctx context.Context, eval evaluations.Evaluation, result evaluations.StageResult) (evaluations.Evaluation, error) {
	entry := evaluations.NewStageAudit(result, stageRationale(result), o.inputHash(eval, result.StageID))
	updated, err := o.repo.UpdateStageResult(ctx, eval.ID, eval.Version, result, entry)
	if err != nil {
		return eval, fmt.Errorf("apply stage %s: %w", result.StageID, err)
	}
	return updated, nil
}

// applySkips marks stages doomed by a failed critical dependency.
func (o *Orchestrator) applySkips(ctx context.Context, eval evaluations.Evaluation) (evaluations.Evaluation, error) {
	for {
		doomed := o.registry.SkippableStages(eval.Stages)
		if len(doomed) == 0 {
			return eval, nil
		}
		now := time.Now().UTC()
		for _, stageID := range doomed {
			result := evaluations.StageResult{
				StageID:     stageID,
				Status:      evaluations.StageSkipped,
				StartedAt:   &now,
				CompletedAt: &now,
			}
			entry := evaluations.NewStageAudit(result, "skipped: a critical dependency did not succeed", "")
			updated, err := o.repo.UpdateStageResult(ctx, eval.ID, eval.Version, result, entry)
			if err != nil {
				return eval, fmt.Errorf("skip stage %s: %w", stageID, err)
			}
			eval = updated
		}
	}
}

// finalize settles the terminal status, attaches the assessment parsed
// from the synthesis output, and hands the evaluation to the publisher.
func (o *Orchestrator) finalize(ctx context.Context, eval evaluations.Evaluation, started time.Time) error {
	status := terminalStatus(o.registry, eval.Stages)

	var assessment *evaluations.FinalAssessment
	if synth, ok := eval.Stages[StageSynthesis]; ok && synth.Status == evaluations.StageSucceeded {
		var parsed evaluations.FinalAssessment
		if err := json.Unmarshal(synth.Output, &parsed); err != nil {
			return fmt.Errorf("decode synthesis output: %w", err)
		}
		assessment = &parsed
	}

	entry := evaluations.NewEvaluationAudit(
		evaluations.SubjectSynthesis, evaluations.FactFinalized,
		finalRationale(status), util.HashInputs(eval.Request), assessment,
	)
	eval, err := o.repo.UpdateStatus(ctx, eval.ID, eval.Version, status, assessment, entry)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	switch status {
	case evaluations.StatusCompleted:
		metrics.IncEvaluationCompleted()
	case evaluations.StatusPartial:
		metrics.IncEvaluationPartial()
	default:
		metrics.IncEvaluationFailed()
	}
	metrics.ObserveEvaluationDurationMs(float64(time.Since(started).Milliseconds()))
	telemetry.Info("pipeline.run_finished", map[string]any{
		"evaluation_id": eval.ID, "status": string(status),
		"duration_ms": time.Since(started).Milliseconds(),
	})

	if o.publisher != nil && status != evaluations.StatusFailed {
		if err := o.publisher.Publish(ctx, eval); err != nil {
			telemetry.Warn("pipeline.publish_failed", map[string]any{
				"evaluation_id": eval.ID, "error": err.Error(),
			})
		}
	}
	return nil
}

// interrupt reverts an interrupted run to PENDING so it can be resumed.
// The revert uses a detached context since the run's own context is
// already dead.
func (o *Orchestrator) interrupt(id string, version int64, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := evaluations.NewEvaluationAudit(
		evaluations.SubjectEvaluation, evaluations.FactRunInterrupted,
		"run interrupted; evaluation requeued", "", nil,
	)
	if _, err := o.repo.UpdateStatus(ctx, id, version, evaluations.StatusPending, nil, entry); err != nil {
		telemetry.Error("pipeline.interrupt_revert_failed", map[string]any{
			"evaluation_id": id, "error": err.Error(),
		})
	}
	return cause
}

// inputHash fingerprints what a stage actually saw: the request plus the
// outputs of its declared dependencies.
func (o *Orchestrator) inputHash(eval evaluations.Evaluation, stageID string) string {
	def, _ := o.registry.Def(stageID)
	deps := make(map[string]json.RawMessage, len(def.DependsOn))
	for _, dep := range def.DependsOn {
		if result, ok := eval.Stages[dep]; ok && result.Status == evaluations.StageSucceeded {
			deps[dep] = result.Output
		}
	}
	return util.HashInputs(struct {
		Request evaluations.EvaluationRequest `json:"request"`
		Deps    map[string]json.RawMessage   `json:"deps"`
	}{eval.Request, deps})
}

func succeededOutputs(eval evaluations.Evaluation) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(eval.Stages))
	for id, result := range eval.Stages {
		if result.Status == evaluations.StageSucceeded {
			out[id] = result.Output
		}
	}
	return out
}

// terminalStatus maps the settled stage map to the evaluation's terminal
// status: a critical failure fails the evaluation, any other failure or
// skip degrades it to PARTIAL, a clean sweep completes it.
func terminalStatus(registry *Registry, stages map[string]evaluations.StageResult) evaluations.Status {
	degraded := false
	for _, id := range registry.Order() {
		def, _ := registry.Def(id)
		st := status(stages, id)
		if st == evaluations.StageFailed || st == evaluations.StageSkipped {
			if def.Critical {
				return evaluations.StatusFailed
			}
			degraded = true
		}
	}
	if degraded {
		return evaluations.StatusPartial
	}
	return evaluations.StatusCompleted
}

func stageRationale(result evaluations.StageResult) string {
	if result.Status == evaluations.StageSucceeded {
		return fmt.Sprintf("succeeded after %d attempt(s)", result.Attempts)
	}
	if result.Error != nil {
		return fmt.Sprintf("failed after %d attempt(s): %s", result.Attempts, result.Error.Message)
	}
	return "failed"
}

func finalRationale(status evaluations.Status) string {
	switch status {
	case evaluations.StatusCompleted:
		return "all stages succeeded"
	case evaluations.StatusPartial:
		return "completed with degraded best-effort stages"
	default:
		return "a critical stage failed"
	}
}
