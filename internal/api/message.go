package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/hub"
	"github.com/dmoreira/interchat/internal/models"
	"github.com/dmoreira/interchat/internal/repository"
)

// MessageHandler serves history and accepts request/response submits. Submits
// run the same pipeline as the live channel: one persist, one broadcast,
// whichever path carried the message.
type MessageHandler struct {
	coord    *hub.Coordinator
	messages repository.MessageRepository
	rooms    repository.RoomRepository
	logger   *zap.Logger
}

func NewMessageHandler(coord *hub.Coordinator, messages repository.MessageRepository, rooms repository.RoomRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{coord: coord, messages: messages, rooms: rooms, logger: logger}
}

// List handles GET /v1/rooms/:id/messages — history ascending by creation,
// the order a client replays on connect.
func (h *MessageHandler) List(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := h.rooms.GetByID(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to get room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	messages, err := h.messages.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type createMessageRequest struct {
	Content  string `json:"content" binding:"required"`
	Type     string `json:"type" binding:"required"`
	UserID   string `json:"userId" binding:"required"`
	ImageURL string `json:"imageUrl"`
}

// Create handles POST /v1/rooms/:id/messages
func (h *MessageHandler) Create(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}

	msg, err := h.coord.Submit(c.Request.Context(), hub.SubmitInput{
		UserID:   userID,
		RoomID:   roomID,
		Type:     models.MessageType(req.Type),
		Content:  req.Content,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		respondError(c, h.logger, "failed to send message", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
