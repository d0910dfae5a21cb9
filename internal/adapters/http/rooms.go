package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func requester(c *gin.Context) domain.UserID {
	if id := c.GetHeader(UserHeader); id != "" {
		return domain.UserID(id)
	}
	return domain.UserID(c.GetString("client_token"))
}

func status(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRoomFull):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCapacity), errors.Is(err, domain.ErrRoomNameEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	code := status(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(code, gin.H{"error": err.Error(), "code": orch.ErrorCode(err)})
}

func registerRooms(api *gin.RouterGroup, o *orch.Orchestrator, cfg *config.Config) {
	// GET /api/rooms: active rooms, newest first
	api.GET("/rooms", func(c *gin.Context) {
		rooms, err := o.ListRooms(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	api.POST("/rooms", func(c *gin.Context) {
		var req struct {
			Name     string `json:"roomName"`
			Capacity int    `json:"maxParticipants"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "code": "bad-payload"})
			return
		}
		if req.Capacity == 0 {
			req.Capacity = cfg.Rooms.DefaultCapacity
		}
		room, err := o.CreateRoom(c.Request.Context(), req.Name, req.Capacity, requester(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, room.Summary())
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		room, err := o.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	})

	api.PATCH("/rooms/:id", func(c *gin.Context) {
		var req struct {
			Name     *string `json:"roomName"`
			Capacity *int    `json:"maxParticipants"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body", "code": "bad-payload"})
			return
		}
		room, err := o.UpdateRoom(c.Request.Context(), domain.RoomID(c.Param("id")), requester(c),
			ledger.RoomPatch{Name: req.Name, Capacity: req.Capacity})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, room.Summary())
	})

	// DELETE /api/rooms/:id: creator only, evicts everyone still inside
	api.DELETE("/rooms/:id", func(c *gin.Context) {
		if err := o.EvictRoom(c.Request.Context(), domain.RoomID(c.Param("id")), requester(c)); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
