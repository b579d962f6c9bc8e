// api/controller/device_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/warden-net/warden/api/errors"
	"github.com/warden-net/warden/api/service"
	"github.com/warden-net/warden/api/util"
)

type DeviceController struct {
	deviceService      service.IDeviceService
	enforcementService service.IEnforcementService
}

func NewDeviceController(deviceService service.IDeviceService, enforcementService service.IEnforcementService) *DeviceController {
	return &DeviceController{
		deviceService:      deviceService,
		enforcementService: enforcementService,
	}
}

// RegisterRoutes registers the API routes
func (dc *DeviceController) RegisterRoutes(r *gin.RouterGroup) {
	devices := r.Group("/devices")
	{
		devices.GET("", dc.ListDevices)
		devices.GET("/:mac", dc.GetDevice)
		devices.GET("/:mac/decision", dc.EvaluateDevice)
	}
	r.GET("/enforcement/state", dc.EnforcementState)
}

// ListDevices endpoint
func (dc *DeviceController) ListDevices(c *gin.Context) {
	devices, err := dc.deviceService.ListDevices(c)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list devices", err)
		return
	}

	c.JSON(http.StatusOK, devices)
}

// GetDevice endpoint
func (dc *DeviceController) GetDevice(c *gin.Context) {
	device, err := dc.deviceService.GetDevice(c, c.Param("mac"))
	if err != nil {
		if errors.Is(err, apperrors.ErrDeviceNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Device not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to get device", err)
		}
		return
	}

	c.JSON(http.StatusOK, device)
}

// EvaluateDevice returns the decision the engine would take for this
// device right now, with the full context for explainability.
func (dc *DeviceController) EvaluateDevice(c *gin.Context) {
	decision := dc.enforcementService.EvaluateDevice(c, c.Param("mac"), c.Query("dest_ip"), 0)
	c.JSON(http.StatusOK, decision)
}

// EnforcementState reports what the reconciler currently holds
// applied, per device.
func (dc *DeviceController) EnforcementState(c *gin.Context) {
	c.JSON(http.StatusOK, dc.enforcementService.State())
}
