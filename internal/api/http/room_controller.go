package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/auction_live/internal/api/http/converter"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/service"
)

// RoomController exposes read-only occupancy of live rooms.
type RoomController struct {
	rooms service.RoomStats
}

func NewRoomController(rooms service.RoomStats) *RoomController {
	return &RoomController{rooms: rooms}
}

func (c *RoomController) AuctionMembers(ctx *gin.Context) {
	c.members(ctx, domain.RoomAuction, ctx.Param("auctionID"))
}

func (c *RoomController) ConversationMembers(ctx *gin.Context) {
	c.members(ctx, domain.RoomConversation, ctx.Param("conversationID"))
}

func (c *RoomController) members(ctx *gin.Context, kind domain.RoomKind, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "room id is required"})
		return
	}

	room := domain.RoomID{Kind: kind, ID: id}
	ctx.JSON(http.StatusOK, converter.RoomStatsToApi(room, c.rooms.MembersCount(room)))
}
