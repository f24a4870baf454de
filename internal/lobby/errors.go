package lobby

import "errors"

// Domain errors returned by Store operations. Callers match them with errors.Is.
var (
	// ErrUnknownClient means the session identifier is not registered.
	ErrUnknownClient = errors.New("unknown identifier")
	// ErrRoomNotFound means the room identifier does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull means the room already holds capacity members.
	ErrRoomFull = errors.New("room full")
	// ErrNotInRoom means the client is not a member of the room.
	ErrNotInRoom = errors.New("not in room")
)
