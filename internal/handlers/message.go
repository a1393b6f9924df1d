package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatrelay/internal/repositories"
)

// MessageHandler serves the history-fetch endpoints, which is how offline
// recipients catch up on messages they missed.
type MessageHandler struct {
	messages repositories.MessageRepository
	logger   *zap.Logger
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// GetDirectHistory returns the full direct conversation between the caller
// and the named user, oldest first.
func (h *MessageHandler) GetDirectHistory(c *gin.Context) {
	peerID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	msgs, err := h.messages.ListDirect(c.Request.Context(), userID, peerID)
	if err != nil {
		h.logger.Error("load direct history", zap.Int("user_id", userID), zap.Int("peer_id", peerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
