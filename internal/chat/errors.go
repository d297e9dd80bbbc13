package chat

import "errors"

var (
	ErrValidation   = errors.New("validation failed")
	ErrRoomNotFound = errors.New("chat room not found")
	// ErrRoomExists is returned by RoomRepository.InsertRoom when the id is
	// already taken, typically by a concurrent create for the same pair.
	ErrRoomExists = errors.New("chat room already exists")
	ErrForbidden  = errors.New("forbidden")
	ErrHubStopped = errors.New("hub stopped")
)
