package httpgin

import (
	"time"

	"github.com/kirinyoku/staygo/internal/domain"
)

// BookingRequest is the body of POST /booking and PUT /booking/{bookingId}.
// RoomID is a pointer so that a missing field can be told apart from 0.
type BookingRequest struct {
	RoomID *int64 `json:"roomId" binding:"required" example:"1"`
}

type BookingIDResponse struct {
	BookingID int64 `json:"bookingId" example:"1"`
}

type RoomResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	HotelID   int64     `json:"hotelId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type BookingResponse struct {
	ID   int64        `json:"id"`
	Room RoomResponse `json:"Room"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toBookingResponse(v *domain.BookingView) BookingResponse {
	return BookingResponse{
		ID: v.ID,
		Room: RoomResponse{
			ID:        v.Room.ID,
			Name:      v.Room.Name,
			Capacity:  v.Room.Capacity,
			HotelID:   v.Room.HotelID,
			CreatedAt: v.Room.CreatedAt,
			UpdatedAt: v.Room.UpdatedAt,
		},
	}
}
