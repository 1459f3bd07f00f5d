package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/broadcast"
	"fleet_tracker/internal/middleware"
)

// authenticateWebSocket validates the JWT passed in the "token" query
// parameter and returns its role.
func (ctl *Controller) authenticateWebSocket(c *gin.Context) (string, error) {
	tokenString := c.Query("token")
	if tokenString == "" {
		return "", errors.New("missing authentication token")
	}
	token, err := ctl.Auth.ValidateToken(tokenString)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	role, _ := claims["role"].(string)
	return role, nil
}

// FleetWebSocket streams the movement of the fleet named by "fleetNo".
//
// @Param token query string true "JWT token for authentication"
// @Param fleetNo query string true "Fleet to follow"
func (ctl *Controller) FleetWebSocket(c *gin.Context) {
	if _, err := ctl.authenticateWebSocket(c); err != nil {
		logrus.WithError(err).Warn("WebSocket authentication failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	fleetNo := c.Query("fleetNo")
	if fleetNo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fleetNo is required"})
		return
	}

	conn, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	client := ctl.Hub.RegisterClient(broadcast.FleetRoom(fleetNo), conn)
	defer ctl.Hub.UnregisterClient(client)

	// Followers only listen; reading drains control frames and notices
	// when the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// CommandWebSocket joins the command room. Text frames received from an
// operator are published to devices as command broadcasts.
func (ctl *Controller) CommandWebSocket(c *gin.Context) {
	role, err := ctl.authenticateWebSocket(c)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket authentication failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if role != middleware.RoleOperator {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return
	}

	conn, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	client := ctl.Hub.RegisterClient(broadcast.CommandRoom, conn)
	defer ctl.Hub.UnregisterClient(client)

	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Warn("Command socket closed unexpectedly")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := ctl.Commands.PublishCommand(p); err != nil {
			logrus.WithError(err).Error("Failed to publish command broadcast")
		}
	}
}
