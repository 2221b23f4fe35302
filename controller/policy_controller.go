// controller/policy_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	arbiter_errors "github.com/veritaskey/arbiter/errors"
	"github.com/veritaskey/arbiter/model"
	"github.com/veritaskey/arbiter/pdp"
	"github.com/veritaskey/arbiter/service"
	"github.com/veritaskey/arbiter/util"
	helper_util "github.com/veritaskey/arbiter/util/helper"
)

type PolicyController struct {
	policyService service.IPolicyService
	engine        *pdp.Engine
}

func NewPolicyController(policyService service.IPolicyService, engine *pdp.Engine) *PolicyController {
	return &PolicyController{
		policyService: policyService,
		engine:        engine,
	}
}

// RegisterRoutes registers the API routes
func (pc *PolicyController) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/policies")
	{
		policies.POST("", pc.CreatePolicy)
		policies.POST("/bulk", pc.BulkCreatePolicies)
		policies.PUT("/:id", pc.UpdatePolicy)
		policies.DELETE("/:id", pc.DeletePolicy)
		policies.POST("/:id/toggle", pc.TogglePolicy)
		policies.GET("/:id", pc.GetPolicy)
		policies.GET("", pc.ListPolicies)
		policies.POST("/core/:id/initialize", pc.InitializeCorePolicy)
	}
	r.POST("/cache/refresh", pc.RefreshCache)
}

type updatePolicyRequest struct {
	model.PolicyPatch
	ExpectedVersion int `json:"expectedVersion" binding:"required"`
}

// CreatePolicy endpoint
func (pc *PolicyController) CreatePolicy(c *gin.Context) {
	var policy model.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", arbiter_errors.ErrInvalidPolicyData)
		return
	}
	userID := util.GetUserIDFromContext(c)

	createdPolicy, err := pc.policyService.CreatePolicy(c, policy, userID)
	if err != nil {
		switch {
		case errors.Is(err, arbiter_errors.ErrDuplicatePolicy):
			util.RespondWithError(c, http.StatusConflict, "Policy already exists", err)
		case errors.Is(err, arbiter_errors.ErrInvalidPolicyData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create policy", arbiter_errors.ErrInternalServer)
		}
		return
	}

	pc.rebuildEngineCache(c)
	c.JSON(http.StatusCreated, createdPolicy)
}

// BulkCreatePolicies endpoint
func (pc *PolicyController) BulkCreatePolicies(c *gin.Context) {
	var policies []model.Policy
	if err := c.ShouldBindJSON(&policies); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", arbiter_errors.ErrInvalidPolicyData)
		return
	}
	userID := util.GetUserIDFromContext(c)

	policyIDs, err := pc.policyService.BulkCreatePolicies(c, policies, userID)
	if err != nil {
		switch {
		case errors.Is(err, arbiter_errors.ErrDuplicatePolicy):
			util.RespondWithError(c, http.StatusConflict, "One or more policies already exist", err)
		case errors.Is(err, arbiter_errors.ErrInvalidPolicyData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create policies", arbiter_errors.ErrInternalServer)
		}
		return
	}

	pc.rebuildEngineCache(c)
	c.JSON(http.StatusCreated, gin.H{"policyIds": policyIDs})
}

// UpdatePolicy endpoint
func (pc *PolicyController) UpdatePolicy(c *gin.Context) {
	policyID := c.Param("id")
	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", err)
		return
	}
	userID := util.GetUserIDFromContext(c)

	updatedPolicy, err := pc.policyService.UpdatePolicy(c, policyID, req.PolicyPatch, req.ExpectedVersion, userID)
	if err != nil {
		switch {
		case errors.Is(err, arbiter_errors.ErrPolicyNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		case errors.Is(err, arbiter_errors.ErrVersionConflict):
			util.RespondWithError(c, http.StatusConflict, "Policy version conflict", err)
		case errors.Is(err, arbiter_errors.ErrInvalidPolicyData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to update policy", err)
		}
		return
	}

	pc.rebuildEngineCache(c)
	c.JSON(http.StatusOK, updatedPolicy)
}

// DeletePolicy endpoint
func (pc *PolicyController) DeletePolicy(c *gin.Context) {
	policyID := c.Param("id")
	userID := util.GetUserIDFromContext(c)

	if err := pc.policyService.DeletePolicy(c, policyID, userID); err != nil {
		switch {
		case errors.Is(err, arbiter_errors.ErrPolicyNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		case errors.Is(err, arbiter_errors.ErrProtectedPolicy):
			util.RespondWithError(c, http.StatusForbidden, "Core policies cannot be deleted", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to delete policy", err)
		}
		return
	}

	pc.rebuildEngineCache(c)
	c.Status(http.StatusNoContent)
}

// TogglePolicy endpoint
func (pc *PolicyController) TogglePolicy(c *gin.Context) {
	policyID := c.Param("id")
	userID := util.GetUserIDFromContext(c)

	toggledPolicy, err := pc.policyService.TogglePolicy(c, policyID, userID)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrPolicyNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to toggle policy", err)
		}
		return
	}

	pc.rebuildEngineCache(c)
	c.JSON(http.StatusOK, toggledPolicy)
}

// GetPolicy endpoint
func (pc *PolicyController) GetPolicy(c *gin.Context) {
	policyID := c.Param("id")

	policy, err := pc.policyService.GetPolicy(c, policyID)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrPolicyNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve policy", err)
		}
		return
	}

	c.JSON(http.StatusOK, policy)
}

// ListPolicies endpoint
func (pc *PolicyController) ListPolicies(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	filter := model.PolicyFilter{
		Scope:    model.Scope(c.Query("scope")),
		Category: c.Query("category"),
		Effect:   model.Effect(c.Query("effect")),
	}
	if raw := c.Query("isActive"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	policies, err := pc.policyService.ListPolicies(c, filter, limit, offset)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrInvalidPagination) {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to list policies", err)
		}
		return
	}

	c.JSON(http.StatusOK, policies)
}

// InitializeCorePolicy endpoint. Idempotent: re-initializing an existing core
// policy returns it unchanged.
func (pc *PolicyController) InitializeCorePolicy(c *gin.Context) {
	policyID := c.Param("id")
	if !model.IsCorePolicy(policyID) {
		util.RespondWithError(c, http.StatusNotFound, "Unknown core policy", arbiter_errors.ErrPolicyNotFound)
		return
	}
	userID := util.GetUserIDFromContext(c)

	policy, err := pc.engine.InitializeCorePolicy(c, policyID, userID)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to initialize core policy", err)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// RefreshCache endpoint
func (pc *PolicyController) RefreshCache(c *gin.Context) {
	if err := pc.engine.RefreshCache(c); err != nil {
		util.RespondWithError(c, http.StatusServiceUnavailable, "Failed to refresh policy cache", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

// rebuildEngineCache refreshes the evaluation snapshot after a mutation so
// decisions see the change without waiting for an explicit refresh call.
func (pc *PolicyController) rebuildEngineCache(c *gin.Context) {
	if err := pc.engine.RefreshCache(c); err != nil {
		_ = c.Error(err)
	}
}
