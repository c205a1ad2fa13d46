package lobby

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotAuthorized = errors.New("only the room owner may do this")
	ErrNotMember     = errors.New("user is not a member of the room")
	ErrInvalidChat   = errors.New("chat message must be 1-500 characters")
)
