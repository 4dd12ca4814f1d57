package converter

import (
	"github.com/immxrtalbeast/auction_live/internal/domain"
)

type RoomStatsResponse struct {
	Kind  domain.RoomKind `json:"kind"`
	ID    string          `json:"id"`
	Count int             `json:"count"`
}

func RoomStatsToApi(room domain.RoomID, count int) *RoomStatsResponse {
	return &RoomStatsResponse{
		Kind:  room.Kind,
		ID:    room.ID,
		Count: count,
	}
}
