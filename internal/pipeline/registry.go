package pipeline

import (
	"fmt"
	"sort"
	"time"

	"kpieval-backend/internal/evaluations"
)

// Stage IDs of the evaluation pipeline.
const (
	StageDocumentIngestion    = "document_ingestion"
	StageBaselineVerification = "baseline_verification"
	StageGovernance           = "governance_assessment"
	StageCapexCredibility     = "capex_credibility"
	StageTrackRecord          = "track_record"
	StagePeerBenchmark        = "peer_benchmark"
	StageScienceAlignment     = "science_alignment"
	StageAchievabilityRisk    = "achievability_risk"
	StageSynthesis            = "synthesis"
)

// StageDef declares one stage's place in the dependency graph and its
// execution policy.
type StageDef struct {
	ID          string
	Tier        int
	DependsOn   []string
	Critical    bool
	MaxAttempts int
	Timeout     time.Duration
}

// DefaultStageDefs returns the fixed pipeline graph. Critical stages
// cascade-skip their dependents on failure; best-effort stages degrade
// the final assessment instead.
func DefaultStageDefs() []StageDef {
	return []StageDef{
		{ID: StageDocumentIngestion, Tier: 1, Critical: true, MaxAttempts: 3, Timeout: 60 * time.Second},

		{ID: StageBaselineVerification, Tier: 2, DependsOn: []string{StageDocumentIngestion}, Critical: true, MaxAttempts: 3, Timeout: 30 * time.Second},
		{ID: StageGovernance, Tier: 2, DependsOn: []string{StageDocumentIngestion}, MaxAttempts: 3, Timeout: 30 * time.Second},
		{ID: StageCapexCredibility, Tier: 2, DependsOn: []string{StageDocumentIngestion}, MaxAttempts: 3, Timeout: 30 * time.Second},
		{ID: StageTrackRecord, Tier: 2, DependsOn: []string{StageDocumentIngestion}, MaxAttempts: 3, Timeout: 30 * time.Second},

		{ID: StagePeerBenchmark, Tier: 3, DependsOn: []string{StageBaselineVerification}, MaxAttempts: 3, Timeout: 45 * time.Second},
		{ID: StageScienceAlignment, Tier: 3, DependsOn: []string{StageBaselineVerification}, MaxAttempts: 3, Timeout: 30 * time.Second},

		{ID: StageAchievabilityRisk, Tier: 4, DependsOn: []string{StageCapexCredibility, StageTrackRecord, StagePeerBenchmark}, MaxAttempts: 2, Timeout: 30 * time.Second},

		{ID: StageSynthesis, Tier: 5, DependsOn: []string{
			StageBaselineVerification, StageGovernance, StageCapexCredibility,
			StageTrackRecord, StagePeerBenchmark, StageScienceAlignment, StageAchievabilityRisk,
		}, Critical: true, MaxAttempts: 2, Timeout: 30 * time.Second},
	}
}

// Registry is the validated stage graph.
type Registry struct {
	defs  map[string]StageDef
	order []string
}

// NewRegistry validates defs (unique IDs, known dependencies, acyclic)
// and returns the registry. Validation failures are configuration
// errors.
func NewRegistry(defs []StageDef) (*Registry, error) {
	byID := make(map[string]StageDef, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return nil, ConfigurationError(fmt.Errorf("stage with empty id"))
		}
		if _, dup := byID[def.ID]; dup {
			return nil, ConfigurationError(fmt.Errorf("duplicate stage id %s", def.ID))
		}
		if def.MaxAttempts <= 0 {
			return nil, ConfigurationError(fmt.Errorf("stage %s: max attempts must be positive", def.ID))
		}
		byID[def.ID] = def
	}
	for _, def := range defs {
		for _, dep := range def.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, ConfigurationError(fmt.Errorf("stage %s depends on unknown stage %s", def.ID, dep))
			}
		}
	}

	order, err := topoSort(byID)
	if err != nil {
		return nil, err
	}
	return &Registry{defs: byID, order: order}, nil
}

// topoSort is Kahn's algorithm with deterministic tie-breaking.
func topoSort(defs map[string]StageDef) ([]string, error) {
	indegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))
	for id, def := range defs {
		indegree[id] += 0
		for _, dep := range def.DependsOn {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(defs))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
	}
	if len(order) != len(defs) {
		return nil, ConfigurationError(fmt.Errorf("stage graph has a cycle"))
	}
	return order, nil
}

// Def returns the definition for a stage id.
func (r *Registry) Def(id string) (StageDef, bool) {
	def, ok := r.defs[id]
	return def, ok
}

// Order returns stage ids in a valid execution order.
func (r *Registry) Order() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered stages.
func (r *Registry) Len() int { return len(r.defs) }

// ReadyStages returns the stages whose execution can start given the
// current stage results: the stage itself is pending and every
// dependency is settled. A best-effort dependency that failed or was
// skipped still releases its dependents; only an unfinished dependency
// blocks.
func (r *Registry) ReadyStages(stages map[string]evaluations.StageResult) []string {
	var ready []string
	for _, id := range r.order {
		if status(stages, id) != evaluations.StagePending {
			continue
		}
		if r.depsSettled(r.defs[id], stages) && !r.criticalDepFailed(r.defs[id], stages) {
			ready = append(ready, id)
		}
	}
	return ready
}

// SkippableStages returns pending stages doomed by a failed or skipped
// critical dependency. They are marked SKIPPED rather than run.
func (r *Registry) SkippableStages(stages map[string]evaluations.StageResult) []string {
	var doomed []string
	for _, id := range r.order {
		if status(stages, id) != evaluations.StagePending {
			continue
		}
		if r.criticalDepFailed(r.defs[id], stages) {
			doomed = append(doomed, id)
		}
	}
	return doomed
}

func (r *Registry) depsSettled(def StageDef, stages map[string]evaluations.StageResult) bool {
	for _, dep := range def.DependsOn {
		if !status(stages, dep).Terminal() {
			return false
		}
	}
	return true
}

// criticalDepFailed reports whether a dependency dooms the stage: a
// failed critical dependency, or any skipped dependency (a skip only
// ever originates from a critical failure upstream).
func (r *Registry) criticalDepFailed(def StageDef, stages map[string]evaluations.StageResult) bool {
	for _, dep := range def.DependsOn {
		switch status(stages, dep) {
		case evaluations.StageSkipped:
			return true
		case evaluations.StageFailed:
			if r.defs[dep].Critical {
				return true
			}
		}
	}
	return false
}

func status(stages map[string]evaluations.StageResult, id string) evaluations.StageStatus {
	if result, ok := stages[id]; ok {
		return result.Status
	}
	return evaluations.StagePending
}
