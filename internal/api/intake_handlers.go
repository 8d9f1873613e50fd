package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sis061/pilltime-sub000/internal"
)

type IntakeStatusRequest struct {
	Status    internal.DoseStatus `json:"status" binding:"required"`
	CheckedAt *time.Time          `json:"checked_at,omitempty"`
}

func PutIntakeStatus(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)
		id := c.Param("id")

		var req IntakeStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError(err.Error()), "Invalid JSON")
			return
		}
		switch req.Status {
		case internal.DoseTaken, internal.DoseSkipped, internal.DoseScheduled:
		default:
			HandleError(c, app.Logger(), internal.ValidationError("status must be taken, skipped or scheduled", "status"), "Intake validation failed")
			return
		}

		dose, err := app.Medicines().SetIntakeStatus(c.Request.Context(), user, id, req.Status, req.CheckedAt)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to update intake status")
			return
		}
		HandleSuccess(c, app.Logger(), dose, nil)
	}
}
