// controller/decision_controller.go
package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veritaskey/arbiter/audit"
	arbiter_errors "github.com/veritaskey/arbiter/errors"
	"github.com/veritaskey/arbiter/model"
	"github.com/veritaskey/arbiter/pdp"
	"github.com/veritaskey/arbiter/util"
	helper_util "github.com/veritaskey/arbiter/util/helper"
)

type DecisionController struct {
	engine       *pdp.Engine
	auditService audit.Service
}

func NewDecisionController(engine *pdp.Engine, auditService audit.Service) *DecisionController {
	return &DecisionController{
		engine:       engine,
		auditService: auditService,
	}
}

// RegisterRoutes registers the API routes
func (dc *DecisionController) RegisterRoutes(r *gin.RouterGroup) {
	decisions := r.Group("/decisions")
	{
		decisions.POST("", dc.Evaluate)
		decisions.GET("/statistics", dc.GetStatistics)
		decisions.GET("/audit-logs", dc.QueryAuditLogs)
	}
}

// Evaluate endpoint. Evaluation never returns a permissive error: malformed
// contexts are rejected with 400, everything else resolves to a decision.
func (dc *DecisionController) Evaluate(c *gin.Context) {
	var ectx model.EvaluationContext
	if err := c.ShouldBindJSON(&ectx); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid evaluation context", arbiter_errors.ErrInvalidContext)
		return
	}

	decision, err := dc.engine.Evaluate(c, ectx)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrInvalidContext) {
			util.RespondWithError(c, http.StatusBadRequest, "Incomplete evaluation context", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Evaluation failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, decision)
}

// GetStatistics endpoint
func (dc *DecisionController) GetStatistics(c *gin.Context) {
	timeRangeHours, err := strconv.Atoi(c.DefaultQuery("timeRangeHours", "24"))
	if err != nil || timeRangeHours <= 0 {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid time range", err)
		return
	}

	stats, err := dc.engine.GetStatistics(c, timeRangeHours)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to compute statistics", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// QueryAuditLogs endpoint
func (dc *DecisionController) QueryAuditLogs(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	filter := audit.LogFilter{
		Result:   model.Effect(c.Query("result")),
		PolicyID: c.Query("policyId"),
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid 'from' timestamp", err)
			return
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid 'to' timestamp", err)
			return
		}
		filter.To = to
	}

	entries, err := dc.auditService.QueryDecisions(c, filter, limit, offset)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query audit logs", err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
