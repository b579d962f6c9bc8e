// api/controller/decision_controller.go
package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warden-net/warden/api/audit"
	apperrors "github.com/warden-net/warden/api/errors"
	"github.com/warden-net/warden/api/util"
	helper_util "github.com/warden-net/warden/api/util/helper"
)

type DecisionController struct {
	auditService audit.Service
}

func NewDecisionController(auditService audit.Service) *DecisionController {
	return &DecisionController{auditService: auditService}
}

// RegisterRoutes registers the API routes
func (dc *DecisionController) RegisterRoutes(r *gin.RouterGroup) {
	decisions := r.Group("/decisions")
	{
		decisions.GET("", dc.QueryDecisions)
		decisions.GET("/:mac", dc.QueryDeviceDecisions)
	}
}

// QueryDecisions searches the decision log across all devices.
func (dc *DecisionController) QueryDecisions(c *gin.Context) {
	dc.query(c, "")
}

// QueryDeviceDecisions searches the decision log for one device.
func (dc *DecisionController) QueryDeviceDecisions(c *gin.Context) {
	dc.query(c, c.Param("mac"))
}

func (dc *DecisionController) query(c *gin.Context, mac string) {
	limit, _, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", apperrors.ErrInvalidPagination)
		return
	}

	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		if from, err = helper_util.ParseTime(v); err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid from timestamp", err)
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = helper_util.ParseTime(v); err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid to timestamp", err)
			return
		}
	}

	entries, err := dc.auditService.QueryDecisions(c, mac, from, to, limit)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query decisions", err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
