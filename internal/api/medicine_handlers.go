package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/service"
)

func PostMedicine(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		var req service.MedicineRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError(err.Error()), "Invalid JSON")
			return
		}
		if err := service.ValidateMedicineRequest(&req); err != nil {
			HandleError(c, app.Logger(), err, "Medicine validation failed")
			return
		}

		view, result, err := app.Medicines().CreateMedicine(c.Request.Context(), user, &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to create medicine")
			return
		}

		HandleSuccess(c, app.Logger(), view, map[string]any{"generation": result})
	}
}

func PutMedicine(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)
		id := c.Param("id")

		var req service.MedicineRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError(err.Error()), "Invalid JSON")
			return
		}
		if err := service.ValidateMedicineRequest(&req); err != nil {
			HandleError(c, app.Logger(), err, "Medicine validation failed")
			return
		}

		view, result, err := app.Medicines().UpdateMedicine(c.Request.Context(), user, id, &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to update medicine")
			return
		}

		HandleSuccess(c, app.Logger(), view, map[string]any{"generation": result})
	}
}

func DeleteMedicine(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)
		id := c.Param("id")

		if err := app.Medicines().DeleteMedicine(c.Request.Context(), user, id); err != nil {
			HandleError(c, app.Logger(), err, "Failed to delete medicine")
			return
		}
		HandleSuccess(c, app.Logger(), gin.H{"deleted": id}, nil)
	}
}

func GetMedicines(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)

		views, err := app.Medicines().ListMedicines(c.Request.Context(), user)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to list medicines")
			return
		}
		HandleSuccess(c, app.Logger(), views, nil)
	}
}

func GetMedicine(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)
		id := c.Param("id")

		view, err := app.Medicines().GetMedicine(c.Request.Context(), user, id)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to fetch medicine")
			return
		}
		HandleSuccess(c, app.Logger(), view, nil)
	}
}
