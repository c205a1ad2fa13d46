package lobby

import "time"

// Message kinds published on a room channel by the lobby.
const (
	KindUserList     = "USER_LIST"
	KindKicked       = "KICKED"
	KindChat         = "CHAT"
	KindGameSelected = "GAME_SELECTED"
)

type NoticeKind string

const (
	NoticeJoined       NoticeKind = "JOINED"
	NoticeLeft         NoticeKind = "LEFT"
	NoticeReady        NoticeKind = "READY"
	NoticeUnready      NoticeKind = "UNREADY"
	NoticeReadyCleared NoticeKind = "READY_CLEARED"
)

type Member struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarRef string `json:"avatarRef"`
	Level     int    `json:"level"`
	IsOwner   bool   `json:"isOwner"`
	IsReady   bool   `json:"isReady"`
}

// Notice says which membership change produced a USER_LIST snapshot.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	UserID      string     `json:"userId,omitempty"`
	Description string     `json:"description"`
}

// PresenceMessage is the USER_LIST snapshot. Version grows with every
// mutation of the room so receivers can drop snapshots that arrive late.
type PresenceMessage struct {
	RoomID  string   `json:"roomId"`
	Kind    string   `json:"kind"`
	Version uint64   `json:"version"`
	OwnerID string   `json:"ownerId"`
	Users   []Member `json:"users"`
	Notice  *Notice  `json:"notice,omitempty"`
}

type KickedMessage struct {
	RoomID      string `json:"roomId"`
	Kind        string `json:"kind"`
	UserID      string `json:"userId"`
	Description string `json:"description"`
}

type ChatMessage struct {
	RoomID   string    `json:"roomId"`
	Kind     string    `json:"kind"`
	Sender   string    `json:"sender"`
	Nickname string    `json:"nickname"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}

type GameSelectedMessage struct {
	RoomID    string `json:"roomId"`
	Kind      string `json:"kind"`
	Variant   string `json:"variant"`
	UpdatedBy string `json:"updatedBy"`
}
