package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sis061/pilltime-sub000/internal"
)

type PushTargetRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

func PostPushTarget(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		var req PushTargetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError(err.Error()), "Invalid JSON")
			return
		}

		target, err := app.Medicines().RegisterPushTarget(c.Request.Context(), user, req.Endpoint)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to register push target")
			return
		}
		HandleSuccess(c, app.Logger(), target, nil)
	}
}

func DeletePushTarget(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)
		id := c.Param("id")

		if err := app.Medicines().RemovePushTarget(c.Request.Context(), user, id); err != nil {
			HandleError(c, app.Logger(), err, "Failed to remove push target")
			return
		}
		HandleSuccess(c, app.Logger(), gin.H{"deleted": id}, nil)
	}
}
