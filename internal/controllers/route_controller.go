package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/repository"
)

// RouteGeometry returns the route's ordered stages as a GeoJSON LineString.
func (ctl *Controller) RouteGeometry(c *gin.Context) {
	routeID, ok := paramID(c, "id")
	if !ok {
		return
	}

	_, stops, err := ctl.Repo.RouteStops(c.Request.Context(), routeID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if len(stops) < 2 {
		abortWithError(c, repository.ErrInsufficientStages)
		return
	}
	body, err := stops.GeoJSON()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}

// ActivateFleetRoute makes the assignment the fleet's only active one.
func (ctl *Controller) ActivateFleetRoute(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	fr, err := ctl.Repo.ActivateFleetRoute(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fleet_route": fr})
}

// ShiftRouteStage moves a stage one place up or down its route.
func (ctl *Controller) ShiftRouteStage(c *gin.Context) {
	routeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	routeStageID, ok := paramID(c, "routeStageId")
	if !ok {
		return
	}
	dir := repository.ShiftDirection(c.Param("direction"))

	ctx := c.Request.Context()
	if err := ctl.Repo.ShiftRouteStage(ctx, routeID, routeStageID, dir); err != nil {
		abortWithError(c, err)
		return
	}

	route, _, err := ctl.Repo.RouteStops(ctx, routeID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"route_id":       routeID,
		"route_stage_id": routeStageID,
		"direction":      dir,
	}).Info("Route stage shifted")
	c.JSON(http.StatusOK, gin.H{"route": route})
}
