package routes

import (
	ginlogger "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/controllers"
	"fleet_tracker/internal/middleware"
)

// SetupRouter wires every operator endpoint onto a new engine.
func SetupRouter(ctl *controllers.Controller) *gin.Engine {
	r := gin.New()
	r.Use(
		ginlogger.SetLogger(
			ginlogger.WithWriter(logrus.StandardLogger().Out),
			ginlogger.WithSkipPath([]string{"/healthz", "/metrics"}),
			ginlogger.WithUTC(true),
		),
		gin.Recovery(),
		middleware.CORS(),
	)

	PublicRoutes(r, ctl)
	OperatorRoutes(r, ctl)
	WebSocketRoutes(r, ctl)
	return r
}

func PublicRoutes(r *gin.Engine, ctl *controllers.Controller) {
	r.GET("/healthz", ctl.Healthz)
	r.GET("/metrics", ctl.Metrics)
	r.GET("/routes/:id/geometry", ctl.RouteGeometry)
}

func OperatorRoutes(r *gin.Engine, ctl *controllers.Controller) {
	op := r.Group("/")
	op.Use(ctl.Auth.RequireAuthWithRole(middleware.RoleOperator))
	{
		op.POST("/fleets/:fleetNo/commands", ctl.SendCommand)
		op.GET("/fleets/:fleetNo/state", ctl.FleetState)
		op.POST("/fleet-routes/:id/activate", ctl.ActivateFleetRoute)
		op.POST("/routes/:id/stages/:routeStageId/shift/:direction", ctl.ShiftRouteStage)
	}
}

// WebSocketRoutes authenticate through the "token" query parameter since
// browsers cannot set headers on a websocket upgrade.
func WebSocketRoutes(r *gin.Engine, ctl *controllers.Controller) {
	ws := r.Group("/ws")
	{
		ws.GET("/fleet", ctl.FleetWebSocket)
		ws.GET("/cmd", ctl.CommandWebSocket)
	}
}
