// api/controller/policy_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/warden-net/warden/api/errors"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/service"
	"github.com/warden-net/warden/api/util"
)

type PolicyController struct {
	policyService      service.IPolicyService
	enforcementService service.IEnforcementService
}

func NewPolicyController(policyService service.IPolicyService, enforcementService service.IEnforcementService) *PolicyController {
	return &PolicyController{
		policyService:      policyService,
		enforcementService: enforcementService,
	}
}

// RegisterRoutes registers the API routes
func (pc *PolicyController) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/policies")
	{
		policies.POST("", pc.CreatePolicy)
		policies.PUT("/:id", pc.UpdatePolicy)
		policies.DELETE("/:id", pc.DeletePolicy)
		policies.GET("/:id", pc.GetPolicy)
		policies.GET("", pc.ListPolicies)
		policies.PUT("/:id/enabled", pc.SetEnabled)
		policies.POST("/:id/test", pc.TestPolicy)
		policies.GET("/suggest/:mac", pc.SuggestPolicies)
		policies.GET("/conflicts", pc.ListConflicts)
		policies.GET("/templates", pc.ListTemplates)
		policies.POST("/apply", pc.ApplyAll)
	}
}

// CreatePolicy endpoint
func (pc *PolicyController) CreatePolicy(c *gin.Context) {
	var policy model.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", apperrors.ErrInvalidPolicyData)
		return
	}

	created, conflicts, err := pc.policyService.CreatePolicy(c, policy)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidPolicyData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", err)
		case errors.Is(err, apperrors.ErrPolicyConflict):
			util.RespondWithError(c, http.StatusConflict, "Policy already exists", err)
		case errors.Is(err, apperrors.ErrDatabaseOperation):
			util.RespondWithError(c, http.StatusInternalServerError, "Database operation failed", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create policy", apperrors.ErrInternalServer)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"policy":    created,
		"conflicts": conflicts,
	})
}

// UpdatePolicy endpoint
func (pc *PolicyController) UpdatePolicy(c *gin.Context) {
	var policy model.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", apperrors.ErrInvalidPolicyData)
		return
	}
	policy.ID = c.Param("id")

	updated, conflicts, err := pc.policyService.UpdatePolicy(c, policy)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidPolicyData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", err)
		case errors.Is(err, apperrors.ErrPolicyNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to update policy", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"policy":    updated,
		"conflicts": conflicts,
	})
}

// DeletePolicy endpoint
func (pc *PolicyController) DeletePolicy(c *gin.Context) {
	policyID := c.Param("id")

	if err := pc.policyService.DeletePolicy(c, policyID); err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to delete policy", err)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// GetPolicy endpoint
func (pc *PolicyController) GetPolicy(c *gin.Context) {
	policy, err := pc.policyService.GetPolicy(c, c.Param("id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to get policy", err)
		}
		return
	}

	c.JSON(http.StatusOK, policy)
}

// ListPolicies endpoint
func (pc *PolicyController) ListPolicies(c *gin.Context) {
	enabledOnly := c.Query("enabled_only") == "true"

	policies, err := pc.policyService.ListPolicies(c, enabledOnly)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	c.JSON(http.StatusOK, policies)
}

// SetEnabled endpoint
func (pc *PolicyController) SetEnabled(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := pc.policyService.SetEnabled(c, c.Param("id"), body.Enabled); err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to update policy", err)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// TestPolicy dry-runs a stored policy against the live context of one
// or more devices. Enforcement is never touched.
func (pc *PolicyController) TestPolicy(c *gin.Context) {
	var body struct {
		MAC  string   `json:"mac"`
		MACs []string `json:"macs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	macs := body.MACs
	if body.MAC != "" {
		macs = append([]string{body.MAC}, macs...)
	}
	if len(macs) == 0 {
		util.RespondWithError(c, http.StatusBadRequest, "Device MAC is required", apperrors.ErrInvalidPolicyData)
		return
	}

	policy, err := pc.policyService.GetPolicy(c, c.Param("id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to get policy", err)
		}
		return
	}

	results := make([]gin.H, 0, len(macs))
	for _, mac := range macs {
		matches, ectx := pc.enforcementService.TestPolicy(c, policy, mac)
		results = append(results, gin.H{
			"mac":     mac,
			"matches": matches,
			"context": ectx,
		})
	}
	c.JSON(http.StatusOK, gin.H{"would_apply": results})
}

// SuggestPolicies recommends policies for one device based on its
// current trust posture and feed signals.
func (pc *PolicyController) SuggestPolicies(c *gin.Context) {
	mac := c.Param("mac")

	suggestions := pc.enforcementService.SuggestPolicies(c, mac)
	if suggestions == nil {
		suggestions = []model.PolicySuggestion{}
	}

	c.JSON(http.StatusOK, gin.H{
		"device_mac":  mac,
		"suggestions": suggestions,
		"total":       len(suggestions),
	})
}

// ListConflicts endpoint
func (pc *PolicyController) ListConflicts(c *gin.Context) {
	conflicts := pc.policyService.Conflicts()
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	c.JSON(http.StatusOK, conflicts)
}

// ListTemplates endpoint
func (pc *PolicyController) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, pc.policyService.Templates())
}

// ApplyAll triggers an immediate enforcement pass.
func (pc *PolicyController) ApplyAll(c *gin.Context) {
	applied, err := pc.enforcementService.ApplyAll(c)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Enforcement pass failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"applied": applied})
}
