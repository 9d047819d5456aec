package evaluations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres. Every mutation runs in a
// transaction so the evaluation row, stage result row, and audit entry
// either all commit or none do.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts the evaluation and its submission audit entry.
func (r *PGRepo) Create(ctx context.Context, eval Evaluation, entry AuditEntry) error {
	requestJSON, err := json.Marshal(eval.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO evaluations (id, status, request, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		eval.ID, string(eval.Status), requestJSON, eval.Version, eval.CreatedAt, eval.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}

	for _, result := range eval.Stages {
		if err := upsertStageResult(ctx, tx, eval.ID, result); err != nil {
			return err
		}
	}

	if err := insertAudit(ctx, tx, eval.ID, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID loads the evaluation aggregate with its stage results.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Evaluation, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, status, request, assessment, version, created_at, updated_at
		 FROM evaluations WHERE id = $1`, id)

	eval, err := scanEvaluation(row)
	if err != nil {
		return Evaluation{}, err
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT stage_id, status, output, error_kind, error_message, attempts, started_at, completed_at
		 FROM stage_results WHERE evaluation_id = $1`, id)
	if err != nil {
		return Evaluation{}, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	eval.Stages = make(map[string]StageResult)
	for rows.Next() {
		result, err := scanStageResult(rows)
		if err != nil {
			return Evaluation{}, err
		}
		eval.Stages[result.StageID] = result
	}
	if err := rows.Err(); err != nil {
		return Evaluation{}, err
	}
	return eval, nil
}

// List returns evaluations newest first. Stage maps are not loaded; list
// callers only need status-level progress.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Evaluation, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, status, request, assessment, version, created_at, updated_at
		 FROM evaluations ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Evaluation{}
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, eval)
	}
	return out, rows.Err()
}

// UpdateStageResult replaces a stage result and appends the audit entry
// under the evaluation's optimistic version check.
func (r *PGRepo) UpdateStageResult(ctx context.Context, id string, expectedVersion int64, result StageResult, entry AuditEntry) (Evaluation, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Evaluation{}, err
	}
	defer tx.Rollback()

	if err := bumpVersion(ctx, tx, id, expectedVersion); err != nil {
		return Evaluation{}, err
	}
	if err := upsertStageResult(ctx, tx, id, result); err != nil {
		return Evaluation{}, err
	}
	if err := insertAudit(ctx, tx, id, entry); err != nil {
		return Evaluation{}, err
	}
	if err := tx.Commit(); err != nil {
		return Evaluation{}, err
	}
	return r.GetByID(ctx, id)
}

// UpdateStatus moves the evaluation to a new status (recording the final
// assessment when present) and appends the audit entry.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, expectedVersion int64, status Status, assessment *FinalAssessment, entry AuditEntry) (Evaluation, error) {
	var assessmentJSON any
	if assessment != nil {
		raw, err := json.Marshal(assessment)
		if err != nil {
			return Evaluation{}, fmt.Errorf("marshal assessment: %w", err)
		}
		assessmentJSON = raw
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Evaluation{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE evaluations
		 SET status = $1, assessment = COALESCE($2, assessment), version = version + 1, updated_at = $3
		 WHERE id = $4 AND version = $5 AND status NOT IN ('PARTIAL', 'COMPLETED', 'FAILED')`,
		string(status), assessmentJSON, time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return Evaluation{}, fmt.Errorf("update status: %w", err)
	}
	if err := checkVersionMatch(ctx, tx, res, id); err != nil {
		return Evaluation{}, err
	}
	if err := insertAudit(ctx, tx, id, entry); err != nil {
		return Evaluation{}, err
	}
	if err := tx.Commit(); err != nil {
		return Evaluation{}, err
	}
	return r.GetByID(ctx, id)
}

// AppendAudit records an audit entry without touching evaluation state.
func (r *PGRepo) AppendAudit(ctx context.Context, id string, entry AuditEntry) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Lock the evaluation row to serialize sequence assignment.
	var exists string
	err = tx.QueryRowContext(ctx, `SELECT id FROM evaluations WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, id, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// ListAudit returns the audit trail ordered by sequence.
func (r *PGRepo) ListAudit(ctx context.Context, id string) ([]AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT seq, ts, subject, fact, detail, rationale, input_hash, supersedes
		 FROM audit_entries WHERE evaluation_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AuditEntry{}
	for rows.Next() {
		var entry AuditEntry
		var detail sql.NullString
		var rationale, inputHash sql.NullString
		if err := rows.Scan(&entry.Seq, &entry.Timestamp, &entry.Subject, &entry.Fact, &detail, &rationale, &inputHash, &entry.Supersedes); err != nil {
			return nil, err
		}
		if detail.Valid {
			entry.Detail = json.RawMessage(detail.String)
		}
		entry.Rationale = rationale.String
		entry.InputHash = inputHash.String
		out = append(out, entry)
	}
	return out, rows.Err()
}

func bumpVersion(ctx context.Context, tx *sql.Tx, id string, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE evaluations SET version = version + 1, updated_at = $1 WHERE id = $2 AND version = $3`,
		time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	return checkVersionMatch(ctx, tx, res, id)
}

func checkVersionMatch(ctx context.Context, tx *sql.Tx, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM evaluations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if Status(status).Terminal() {
		return ErrTerminal
	}
	return ErrVersionConflict
}

func upsertStageResult(ctx context.Context, tx *sql.Tx, evalID string, result StageResult) error {
	var output any
	if len(result.Output) > 0 {
		output = []byte(result.Output)
	}
	var errKind, errMessage any
	if result.Error != nil {
		errKind = result.Error.Kind
		errMessage = result.Error.Message
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO stage_results (evaluation_id, stage_id, status, output, error_kind, error_message, attempts, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (evaluation_id, stage_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   output = EXCLUDED.output,
		   error_kind = EXCLUDED.error_kind,
		   error_message = EXCLUDED.error_message,
		   attempts = EXCLUDED.attempts,
		   started_at = EXCLUDED.started_at,
		   completed_at = EXCLUDED.completed_at`,
		evalID, result.StageID, string(result.Status), output, errKind, errMessage,
		result.Attempts, result.StartedAt, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert stage result: %w", err)
	}
	return nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, evalID string, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var detail any
	if len(entry.Detail) > 0 {
		detail = []byte(entry.Detail)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_entries (evaluation_id, seq, ts, subject, fact, detail, rationale, input_hash, supersedes)
		 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE evaluation_id = $1), $2, $3, $4, $5, $6, $7, $8)`,
		evalID, entry.Timestamp, entry.Subject, entry.Fact, detail, entry.Rationale, entry.InputHash, entry.Supersedes)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (Evaluation, error) {
	var eval Evaluation
	var status string
	var requestJSON []byte
	var assessmentJSON sql.NullString
	err := row.Scan(&eval.ID, &status, &requestJSON, &assessmentJSON, &eval.Version, &eval.CreatedAt, &eval.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	if err != nil {
		return Evaluation{}, err
	}
	eval.Status = Status(status)
	if err := json.Unmarshal(requestJSON, &eval.Request); err != nil {
		return Evaluation{}, fmt.Errorf("unmarshal request: %w", err)
	}
	if assessmentJSON.Valid {
		var assessment FinalAssessment
		if err := json.Unmarshal([]byte(assessmentJSON.String), &assessment); err != nil {
			return Evaluation{}, fmt.Errorf("unmarshal assessment: %w", err)
		}
		eval.Assessment = &assessment
	}
	return eval, nil
}

func scanStageResult(row rowScanner) (StageResult, error) {
	var result StageResult
	var status string
	var output, errKind, errMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&result.StageID, &status, &output, &errKind, &errMessage, &result.Attempts, &startedAt, &completedAt)
	if err != nil {
		return StageResult{}, err
	}
	result.Status = StageStatus(status)
	if output.Valid {
		result.Output = json.RawMessage(output.String)
	}
	if errKind.Valid || errMessage.Valid {
		result.Error = &StageError{Kind: errKind.String, Message: errMessage.String}
	}
	if startedAt.Valid {
		ts := startedAt.Time
		result.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		result.CompletedAt = &ts
	}
	return result, nil
}

var _ Repo = (*PGRepo)(nil)
