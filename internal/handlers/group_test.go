package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/mocks"
	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/groups", handler.CreateGroup)
	r.GET("/groups/:group_id", handler.GetGroup)
	r.GET("/groups/:group_id/messages", handler.GetGroupMessages)
	r.DELETE("/groups/:group_id", handler.DeleteGroup)
	r.DELETE("/groups/:group_id/members/:member_id", handler.RemoveMember)
	r.POST("/groups/:group_id/leave", handler.Leave)
	return r
}

func memberList(ids ...int) []models.GroupMember {
	members := make([]models.GroupMember, 0, len(ids))
	for _, id := range ids {
		members = append(members, models.GroupMember{UserID: id, Role: models.RoleMember})
	}
	return members
}

func TestCreateGroupSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	publisher := new(mocks.PublisherMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), publisher, zap.NewNop())
	router := setupGroupRouter(handler)

	groupRepo.On("CreateGroup", mock.Anything, 1, "test", "", []int{2}).Return(models.Group{ID: 5, Name: "test", CreatorID: 1}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.groups", mock.Anything, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"test","memberIds":[2]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	groupRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestCreateGroupInvalidBody(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGroupNotMember(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	group := models.Group{ID: 9, CreatorID: 2, Members: memberList(2, 3)}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetGroupNotFound(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroup", mock.Anything, 9).Return(nil, repositories.ErrGroupNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetGroupMessagesSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewGroupHandler(groupRepo, messageRepo, nil, zap.NewNop())
	router := setupGroupRouter(handler)

	group := models.Group{ID: 9, CreatorID: 1, Members: memberList(1, 2)}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()
	messageRepo.On("ListGroup", mock.Anything, 9).Return([]models.Message{{ID: 1, SenderID: 1, Text: "hey"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestGetGroupMessagesInvalidID(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/groups/bad/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveCreatorRejected(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	group := models.Group{ID: 9, CreatorID: 2, Members: []models.GroupMember{
		{UserID: 1, Role: models.RoleAdmin},
		{UserID: 2, Role: models.RoleAdmin},
	}}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, 9, 2).Return(repositories.ErrCreatorImmutable).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/9/members/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveMemberSelfAllowed(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	// Caller 1 is a plain member removing itself.
	group := models.Group{ID: 9, CreatorID: 2, Members: memberList(1, 2)}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, 9, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/9/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestRemoveMemberNotAdmin(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	group := models.Group{ID: 9, CreatorID: 2, Members: memberList(1, 2, 3)}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/9/members/3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestLeaveLastMemberDeletesGroup(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	publisher := new(mocks.PublisherMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), publisher, zap.NewNop())
	router := setupGroupRouter(handler)

	group := models.Group{ID: 9, CreatorID: 1, Members: memberList(1)}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()
	groupRepo.On("Leave", mock.Anything, 9, 1).Return(true, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.groups", mock.Anything, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/9/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"groupDeleted":true}`, rec.Body.String())
	groupRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestLeaveWithRemainingMembers(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	publisher := new(mocks.PublisherMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), publisher, zap.NewNop())
	router := setupGroupRouter(handler)

	group := models.Group{ID: 9, CreatorID: 2, Members: memberList(1, 2)}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()
	groupRepo.On("Leave", mock.Anything, 9, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/9/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"groupDeleted":false}`, rec.Body.String())
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteGroupNotCreator(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	group := models.Group{ID: 9, CreatorID: 2, Members: memberList(1, 2)}
	groupRepo.On("GetGroup", mock.Anything, 9).Return(group, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertNotCalled(t, "DeleteGroup", mock.Anything, mock.Anything)
}
