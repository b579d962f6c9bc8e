// api/controller/trust_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/warden-net/warden/api/errors"
	"github.com/warden-net/warden/api/service"
	"github.com/warden-net/warden/api/util"
)

type TrustController struct {
	trustService service.ITrustService
}

func NewTrustController(trustService service.ITrustService) *TrustController {
	return &TrustController{trustService: trustService}
}

// RegisterRoutes registers the API routes
func (tc *TrustController) RegisterRoutes(r *gin.RouterGroup) {
	trust := r.Group("/trust")
	{
		trust.GET("", tc.ListScores)
		trust.GET("/summary", tc.Summary)
		trust.GET("/:mac", tc.GetScore)
		trust.PUT("/:mac/override", tc.Override)
		trust.POST("/recalculate", tc.Recalculate)
	}
}

// ListScores endpoint
func (tc *TrustController) ListScores(c *gin.Context) {
	scores, err := tc.trustService.ListScores(c)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list trust scores", err)
		return
	}

	c.JSON(http.StatusOK, scores)
}

// Summary endpoint
func (tc *TrustController) Summary(c *gin.Context) {
	summary, err := tc.trustService.Summary(c)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to summarize trust scores", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetScore endpoint. Unknown devices report the neutral baseline
// rather than an error, matching how evaluation treats them.
func (tc *TrustController) GetScore(c *gin.Context) {
	c.JSON(http.StatusOK, tc.trustService.GetScore(c, c.Param("mac")))
}

// Override endpoint
func (tc *TrustController) Override(c *gin.Context) {
	var body struct {
		Score  int    `json:"score"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Override reason is required", apperrors.ErrInvalidTrustData)
		return
	}
	if body.Score < 0 || body.Score > 100 {
		util.RespondWithError(c, http.StatusBadRequest, "Score out of range", apperrors.ErrInvalidTrustData)
		return
	}

	score, err := tc.trustService.Override(c, c.Param("mac"), body.Score, body.Reason)
	if err != nil {
		if errors.Is(err, apperrors.ErrDeviceNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Device not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to override trust score", err)
		}
		return
	}

	c.JSON(http.StatusOK, score)
}

// Recalculate endpoint
func (tc *TrustController) Recalculate(c *gin.Context) {
	scores, err := tc.trustService.Recalculate(c)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to recalculate trust scores", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": len(scores), "scores": scores})
}
