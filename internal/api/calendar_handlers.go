package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sis061/pilltime-sub000/internal"
)

func GetMonthIndicator(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)
		yearMonth := c.Param("month")

		dots, err := app.Indicator().BuildMonthIndicator(c.Request.Context(), user.ID, yearMonth)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to build month indicator")
			return
		}
		HandleSuccess(c, app.Logger(), dots, nil)
	}
}

func GetDayDetail(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet("user").(*internal.User)
		date := c.Param("date")

		views, err := app.Indicator().DayDetail(c.Request.Context(), user.ID, date)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to fetch day detail")
			return
		}
		HandleSuccess(c, app.Logger(), views, nil)
	}
}
