package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sis061/pilltime-sub000/internal/auth"
	"github.com/sis061/pilltime-sub000/internal/config"
)

// RegisterRoutes wires the protected API surface onto the engine.
func RegisterRoutes(r *gin.Engine, app App, provider auth.Provider, cfg *config.Config) {
	r.Use(RequestIDMiddleware())

	g := r.Group("/api")
	g.Use(auth.AuthMiddleware(provider, cfg))

	g.POST("/medicines", PostMedicine(app))
	g.GET("/medicines", GetMedicines(app))
	g.GET("/medicines/:id", GetMedicine(app))
	g.PUT("/medicines/:id", PutMedicine(app))
	g.DELETE("/medicines/:id", DeleteMedicine(app))

	g.GET("/calendar/month/:month", GetMonthIndicator(app))
	g.GET("/calendar/day/:date", GetDayDetail(app))

	g.PUT("/intakes/:id/status", PutIntakeStatus(app))

	g.POST("/push-targets", PostPushTarget(app))
	g.DELETE("/push-targets/:id", DeletePushTarget(app))
}
