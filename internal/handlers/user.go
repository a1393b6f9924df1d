package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
	"chatrelay/internal/ws"
)

// UserHandler serves the user browsing and preferences endpoints.
type UserHandler struct {
	users    repositories.UserRepository
	registry *ws.Registry
	logger   *zap.Logger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users repositories.UserRepository, registry *ws.Registry, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, registry: registry, logger: logger}
}

// ListUsers returns every user except the caller.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt("userID")

	users, err := h.users.ListUsers(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ListOnline reports which users currently have a live connection.
func (h *UserHandler) ListOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.registry.OnlineIDs()})
}

// GetSettings returns the caller's preferences.
func (h *UserHandler) GetSettings(c *gin.Context) {
	userID := c.GetInt("userID")

	settings, err := h.users.GetSettings(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSettings replaces the caller's preferences.
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	userID := c.GetInt("userID")

	var req models.UserSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.UpdateSettings(c.Request.Context(), userID, req); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to update settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": req})
}

// UpdateProfile changes the caller's display name and avatar.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name      string  `json:"name" binding:"required"`
		AvatarURL *string `json:"avatarUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.UpdateProfile(c.Request.Context(), userID, req.Name, req.AvatarURL); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to update profile"})
		return
	}
	c.Status(http.StatusNoContent)
}
