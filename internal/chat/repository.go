package chat

import "context"

// RoomRepository stores the room directory. Implementations must enforce
// uniqueness of Room.ID and report a duplicate insert as ErrRoomExists.
type RoomRepository interface {
	FindRoom(ctx context.Context, id string) (*Room, error)
	InsertRoom(ctx context.Context, room *Room) error
	ListRoomsByParticipant(ctx context.Context, wallet string) ([]Room, error)
}

// MessageRepository is the append-only message log.
type MessageRepository interface {
	// AppendMessage persists msg and sets msg.ID.
	AppendMessage(ctx context.Context, msg *Message) error
	// History returns every message of the room, oldest first.
	History(ctx context.Context, roomID string) ([]Message, error)
}
