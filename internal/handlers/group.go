package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/observability"
	"chatrelay/internal/rabbitmq"
	"chatrelay/internal/repositories"
)

const auditRoutingKey = "audit.groups"

// GroupHandler manages group CRUD and membership endpoints.
type GroupHandler struct {
	groups    repositories.GroupRepository
	messages  repositories.MessageRepository
	publisher rabbitmq.Publisher
	logger    *zap.Logger
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups repositories.GroupRepository, messages repositories.MessageRepository, publisher rabbitmq.Publisher, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, messages: messages, publisher: publisher, logger: logger}
}

// CreateGroup handles POST /api/groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		MemberIDs   []int  `json:"memberIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), userID, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		h.logger.Error("create group", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.audit(c, "group_created", group.ID, userID)
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// MyGroups returns the groups the caller belongs to, most recently active
// first.
func (h *GroupHandler) MyGroups(c *gin.Context) {
	userID := c.GetInt("userID")

	groups, err := h.groups.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup returns one group with its member list, members only.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	if !group.HasMember(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// GetGroupMessages returns the group's history, members only.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	if !group.HasMember(c.GetInt("userID")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		return
	}

	msgs, err := h.messages.ListGroup(c.Request.Context(), group.ID)
	if err != nil {
		h.logger.Error("load group messages", zap.Int("group_id", group.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// UpdateGroup changes name and description, admins only.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if !group.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admins only"})
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.UpdateGroup(c.Request.Context(), group.ID, req.Name, req.Description); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update group"})
		return
	}
	c.Status(http.StatusNoContent)
}

// AddMember invites a user into the group, admins only.
func (h *GroupHandler) AddMember(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if !group.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admins only"})
		return
	}

	var req struct {
		UserID int `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.AddMember(c.Request.Context(), group.ID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember kicks a member. Admins can remove anyone but the creator;
// members can remove themselves.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	memberID, err := strconv.Atoi(c.Param("member_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}

	userID := c.GetInt("userID")
	if memberID != userID && !group.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins can remove members"})
		return
	}

	if err := h.groups.RemoveMember(c.Request.Context(), group.ID, memberID); err != nil {
		if errors.Is(err, repositories.ErrCreatorImmutable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group creator cannot be removed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}
	c.Status(http.StatusNoContent)
}

// PromoteMember grants a member the admin role, admins only.
func (h *GroupHandler) PromoteMember(c *gin.Context) {
	h.setRole(c, models.RoleAdmin)
}

// DemoteMember revokes the admin role. The creator cannot be demoted.
func (h *GroupHandler) DemoteMember(c *gin.Context) {
	h.setRole(c, models.RoleMember)
}

func (h *GroupHandler) setRole(c *gin.Context, role models.GroupRole) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	memberID, err := strconv.Atoi(c.Param("member_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}

	userID := c.GetInt("userID")
	if !group.IsAdmin(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admins only"})
		return
	}
	if !group.HasMember(memberID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not a group member"})
		return
	}

	if err := h.groups.SetMemberRole(c.Request.Context(), group.ID, memberID, role); err != nil {
		if errors.Is(err, repositories.ErrCreatorImmutable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group creator role cannot change"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update member role"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave removes the caller from the group. When the last member leaves, the
// group and all of its messages are deleted.
func (h *GroupHandler) Leave(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if !group.HasMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		return
	}

	deleted, err := h.groups.Leave(c.Request.Context(), group.ID, userID)
	if err != nil {
		h.logger.Error("leave group", zap.Int("group_id", group.ID), zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}

	if deleted {
		h.audit(c, "group_deleted", group.ID, userID)
	}
	c.JSON(http.StatusOK, gin.H{"groupDeleted": deleted})
}

// DeleteGroup removes the group outright, creator only. Messages cascade.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if group.CreatorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can delete the group"})
		return
	}

	if err := h.groups.DeleteGroup(c.Request.Context(), group.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
		return
	}

	h.audit(c, "group_deleted", group.ID, userID)
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) loadGroup(c *gin.Context) (models.Group, bool) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return models.Group{}, false
	}

	group, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "group not found"})
		return models.Group{}, false
	}
	return group, true
}

func (h *GroupHandler) audit(c *gin.Context, event string, groupID int, userID int) {
	if h.publisher == nil {
		return
	}
	envelope := observability.EventEnvelope{
		EventType: "audit_log",
		EventName: event,
		Payload: map[string]interface{}{
			"group_id": groupID,
			"user_id":  userID,
		},
	}
	headers := observability.BuildHeaders(observability.RequestIDFromRequest(c.Request), "")
	if err := h.publisher.Publish(c.Request.Context(), auditRoutingKey, envelope, headers); err != nil {
		h.logger.Debug("publish audit event", zap.String("event", event), zap.Error(err))
	}
}
