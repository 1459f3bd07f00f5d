// Package controllers implements the operator HTTP and websocket endpoints.
package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/broadcast"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/movement"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/stream"
)

// CommandSender broadcasts raw command frames to devices.
type CommandSender interface {
	PublishCommand(payload []byte) error
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Repo     *repository.Repository
	Streams  *stream.Client
	Store    movement.Store
	Hub      *broadcast.Hub
	Commands CommandSender
	Auth     *middleware.Auth
}

type Controller struct {
	Deps
	upgrader websocket.Upgrader
}

func New(d Deps) *Controller {
	return &Controller{
		Deps: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens travel in the query string, so any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// statusFor maps repository errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrRouteNotFound),
		errors.Is(err, repository.ErrFleetRouteNotFound),
		errors.Is(err, repository.ErrRouteStageNotFound),
		errors.Is(err, repository.ErrFleetNotFound),
		errors.Is(err, repository.ErrNoActiveRoute):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrFleetRouteVoided),
		errors.Is(err, repository.ErrShiftOutOfRange):
		return http.StatusConflict
	case errors.Is(err, repository.ErrInvalidShift):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrInsufficientStages):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
