package report

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kpieval-backend/internal/evaluations"
	"kpieval-backend/internal/shared/server/respond"
)

// Handler serves the assembled evaluation report.
type Handler struct {
	Svc *evaluations.Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *evaluations.Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches report routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/evaluations/:id/report", h.getReport)
}

func (h *Handler) getReport(c *gin.Context) {
	id := c.Param("id")
	eval, trail, err := h.Svc.Terminal(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, evaluations.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
		case errors.Is(err, evaluations.ErrNotTerminal):
			respond.Error(c, http.StatusConflict, "not_terminal", "evaluation has not finished", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build report", nil)
		}
		return
	}
	respond.OK(c, Build(eval, trail))
}
