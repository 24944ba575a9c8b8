package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/hub"
	"github.com/dmoreira/interchat/internal/repository"
)

// MembershipHandler exposes join/leave over plain HTTP. Both go through the
// same coordinator as the live channel, so connected members still see
// userJoined/userLeft and the notices regardless of which path was used.
type MembershipHandler struct {
	coord       *hub.Coordinator
	memberships repository.MembershipRepository
	rooms       repository.RoomRepository
	logger      *zap.Logger
}

func NewMembershipHandler(coord *hub.Coordinator, memberships repository.MembershipRepository, rooms repository.RoomRepository, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{coord: coord, memberships: memberships, rooms: rooms, logger: logger}
}

type joinLeaveRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// Join handles POST /v1/rooms/:id/join
func (h *MembershipHandler) Join(c *gin.Context) {
	roomID, userID, ok := h.parseIDs(c)
	if !ok {
		return
	}

	m, err := h.coord.Join(c.Request.Context(), userID, roomID)
	if err != nil {
		respondError(c, h.logger, "failed to join room", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"membership": m})
}

// Leave handles POST /v1/rooms/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	roomID, userID, ok := h.parseIDs(c)
	if !ok {
		return
	}

	if err := h.coord.Leave(c.Request.Context(), userID, roomID); err != nil {
		respondError(c, h.logger, "failed to leave room", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /v1/rooms/:id/users
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := h.rooms.GetByID(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to get room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	members, err := h.memberships.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to list members", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": members})
}

func (h *MembershipHandler) parseIDs(c *gin.Context) (roomID, userID uuid.UUID, ok bool) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return uuid.Nil, uuid.Nil, false
	}

	var req joinLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, uuid.Nil, false
	}
	userID, err = uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return uuid.Nil, uuid.Nil, false
	}

	return roomID, userID, true
}
