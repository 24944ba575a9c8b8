package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/hub"
	"github.com/dmoreira/interchat/internal/repository"
)

// RoomHandler serves the room catalog. Rooms are created elsewhere; this
// surface only lists them and reports aggregates.
type RoomHandler struct {
	rooms  repository.RoomRepository
	coord  *hub.Coordinator
	logger *zap.Logger
}

func NewRoomHandler(rooms repository.RoomRepository, coord *hub.Coordinator, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, coord: coord, logger: logger}
}

// List handles GET /v1/rooms
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.rooms.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list rooms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// Stats handles GET /v1/rooms/stats
//
// Member and message counts come from the store; the online count is live
// connection state from the registry.
func (h *RoomHandler) Stats(c *gin.Context) {
	stats, err := h.rooms.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load room stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room stats"})
		return
	}

	for i := range stats {
		stats[i].Online = h.coord.Online(stats[i].RoomID)
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
