package game

const (
	KindStarted  = "STARTED"
	KindProgress = "PROGRESS"
	KindEnded    = "ENDED"
)

type PlayerState struct {
	UserID    string `json:"userId"`
	Score     int    `json:"score"`
	Nickname  string `json:"nickname"`
	AvatarRef string `json:"avatarRef"`
}

type StartedMessage struct {
	RoomID    string        `json:"roomId"`
	Kind      string        `json:"kind"`
	Variant   Variant       `json:"variant"`
	Threshold int           `json:"threshold"`
	Players   []PlayerState `json:"players"`
	// Sequence is the answer key of a pattern round.
	Sequence []int `json:"sequence,omitempty"`
}

type ProgressMessage struct {
	RoomID  string        `json:"roomId"`
	Kind    string        `json:"kind"`
	Variant Variant       `json:"variant"`
	Players []PlayerState `json:"players"`
}

type EndedMessage struct {
	RoomID         string        `json:"roomId"`
	Kind           string        `json:"kind"`
	Variant        Variant       `json:"variant"`
	Players        []PlayerState `json:"players"`
	Winner         string        `json:"winner"`
	WinnerNickname string        `json:"winnerNickname"`
	FinishOrder    []string      `json:"finishOrder"`
}
