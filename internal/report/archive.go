package report

import (
	"context"
	"fmt"
	"sort"

	"kpieval-backend/internal/evaluations"
	"kpieval-backend/internal/shared/storage/object"
	"kpieval-backend/internal/shared/telemetry"
)

const artifactContentType = "application/json"

// Archive publishes terminal evaluations: it writes each stage output
// and the rendered report to the object store. It implements the
// pipeline's Publisher contract.
type Archive struct {
	Store    object.ObjectStore
	Repo     evaluations.Repo
	Renderer Renderer
}

// Publish archives the evaluation's stage outputs and rendered report.
func (a *Archive) Publish(ctx context.Context, eval evaluations.Evaluation) error {
	for _, id := range sortedStageIDs(eval.Stages) {
		result := eval.Stages[id]
		if len(result.Output) == 0 {
			continue
		}
		key := stageKey(eval.ID, id)
		if err := a.Store.Put(ctx, key, artifactContentType, result.Output); err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
	}

	trail, err := a.Repo.ListAudit(ctx, eval.ID)
	if err != nil {
		return fmt.Errorf("load audit trail: %w", err)
	}
	renderer := a.Renderer
	if renderer == nil {
		renderer = JSONRenderer{}
	}
	data, err := renderer.Render(ctx, Build(eval, trail))
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	key := reportKey(eval.ID)
	if err := a.Store.Put(ctx, key, artifactContentType, data); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}

	telemetry.Info("report.archived", map[string]any{
		"evaluation_id": eval.ID, "key": key, "stages": len(eval.Stages),
	})
	return nil
}

func stageKey(evaluationID, stageID string) string {
	return fmt.Sprintf("evaluations/%s/stages/%s.json", evaluationID, stageID)
}

func reportKey(evaluationID string) string {
	return fmt.Sprintf("evaluations/%s/report.json", evaluationID)
}

func sortedStageIDs(stages map[string]evaluations.StageResult) []string {
	ids := make([]string, 0, len(stages))
	for id := range stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
