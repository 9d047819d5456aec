package evaluations

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"kpieval-backend/internal/shared/server/middleware"
	"kpieval-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the evaluations service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches evaluation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/evaluations", h.submitEvaluation)
	rg.GET("/evaluations", h.listEvaluations)
	rg.GET("/evaluations/:id", h.getEvaluation)
	rg.GET("/evaluations/:id/audit", h.getAuditTrail)
	rg.POST("/evaluations/:id/decision", h.submitDecision)
}

func (h *Handler) submitEvaluation(c *gin.Context) {
	var req EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	eval, err := h.Svc.Submit(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to submit evaluation", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"evaluationId": eval.ID,
		"status":       eval.Status,
	})
}

func (h *Handler) getEvaluation(c *gin.Context) {
	id := c.Param("id")
	eval, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch evaluation", nil)
		}
		return
	}

	resp := gin.H{
		"id":        eval.ID,
		"status":    eval.Status,
		"company":   eval.Request.Company.Name,
		"metric":    eval.Request.Target.Metric,
		"stages":    stageProgress(eval),
		"createdAt": eval.CreatedAt,
		"updatedAt": eval.UpdatedAt,
	}
	if eval.Status.Terminal() && eval.Assessment != nil {
		resp["assessment"] = eval.Assessment
	}
	respond.OK(c, resp)
}

func (h *Handler) listEvaluations(c *gin.Context) {
	limit := parseIntDefault(c.Query("limit"), 20)
	offset := parseIntDefault(c.Query("offset"), 0)

	evals, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list evaluations", nil)
		return
	}

	items := make([]gin.H, 0, len(evals))
	for _, eval := range evals {
		item := gin.H{
			"id":        eval.ID,
			"status":    eval.Status,
			"company":   eval.Request.Company.Name,
			"metric":    eval.Request.Target.Metric,
			"createdAt": eval.CreatedAt,
		}
		if eval.Assessment != nil {
			item["category"] = eval.Assessment.Category
			item["recommendation"] = eval.Assessment.Recommendation
		}
		items = append(items, item)
	}
	respond.OK(c, gin.H{"evaluations": items, "limit": limit, "offset": offset})
}

func (h *Handler) getAuditTrail(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Svc.Get(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch audit trail", nil)
		}
		return
	}

	trail, err := h.Svc.Repo.ListAudit(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch audit trail", nil)
		return
	}
	respond.OK(c, gin.H{"evaluationId": id, "entries": trail})
}

func (h *Handler) submitDecision(c *gin.Context) {
	id := c.Param("id")
	var decision BankerDecision
	if err := c.ShouldBindJSON(&decision); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	if err := h.Svc.SubmitDecision(c.Request.Context(), id, decision); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
		case errors.Is(err, ErrNotTerminal):
			respond.Error(c, http.StatusConflict, "not_terminal", "evaluation has not finished", nil)
		case errors.Is(err, ErrInvalidRequest):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to record decision", nil)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, gin.H{"evaluationId": id, "decision": decision.Decision})
}

// stageProgress summarizes per-stage status for polling clients.
func stageProgress(eval Evaluation) []gin.H {
	out := make([]gin.H, 0, len(eval.Stages))
	for _, id := range sortedStageIDs(eval.Stages) {
		result := eval.Stages[id]
		item := gin.H{"stageId": id, "status": result.Status, "attempts": result.Attempts}
		if result.Error != nil {
			item["error"] = result.Error
		}
		out = append(out, item)
	}
	return out
}

func sortedStageIDs(stages map[string]StageResult) []string {
	ids := make([]string, 0, len(stages))
	for id := range stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
