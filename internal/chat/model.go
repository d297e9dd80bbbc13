package chat

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

// Room is a conversation between exactly two wallets. ID is derived from the
// pair (see wallet.RoomID), so a pair never gets a second room.
type Room struct {
	ID        string    `json:"chatRoomId"`
	Users     []string  `json:"users"`
	Label     string    `json:"label"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasParticipant reports whether addr (already normalized) is in the room.
func (r *Room) HasParticipant(addr string) bool {
	return lo.Contains(r.Users, addr)
}

// Message is immutable once stored. ID is assigned by the store.
type Message struct {
	ID         string    `json:"_id"`
	ChatRoomID string    `json:"chatRoomId"`
	Sender     string    `json:"sender"`
	Receiver   string    `json:"receiver,omitempty"`
	Body       string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type CreateRoomRequest struct {
	Label     string `json:"label" validate:"required"`
	WalletA   string `json:"walletA" validate:"required"`
	WalletB   string `json:"walletB" validate:"required"`
	CreatedBy string `json:"createdBy" validate:"required"`
}

type CreateRoomResponse struct {
	Message    string `json:"message"`
	ChatRoomID string `json:"chatRoomId"`
}

type RoomsResponse struct {
	Chats []Room `json:"chats"`
}

// ---------------------------------------------
// ⚡ Real-time event frames
// ---------------------------------------------

const (
	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventChatHistory    = "chatHistory"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// Frame is the envelope for every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendRequest is the sendMessage payload the frontend emits.
type SendRequest struct {
	ChatRoomID string `json:"chatRoomId"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	Message    string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
