package roomhandler

type CreateRoomBody struct {
	OwnerID string `json:"owner_id" binding:"required" example:"user123"`
} // @name CreateRoomRequest

type MemberBody struct {
	UserID string `json:"user_id" binding:"required" example:"user123"`
} // @name MemberRequest

type KickBody struct {
	RequesterID string `json:"requester_id" binding:"required" example:"owner1"`
	TargetID    string `json:"target_id"    binding:"required" example:"user123"`
} // @name KickRequest

type OwnerBody struct {
	RequesterID string `json:"requester_id" binding:"required" example:"owner1"`
} // @name OwnerRequest

type ChatBody struct {
	UserID  string `json:"user_id" binding:"required"          example:"user123"`
	Content string `json:"content" binding:"required,max=500" example:"hello"`
} // @name ChatRequest

type StartGameBody struct {
	RequesterID string `json:"requester_id" binding:"required" example:"owner1"`
	Variant     string `json:"variant"      binding:"required,oneof=tap pattern collect" example:"tap"`
} // @name StartGameRequest

type SelectGameBody struct {
	UserID  string `json:"user_id" binding:"required" example:"owner1"`
	Variant string `json:"variant" binding:"required,oneof=tap pattern collect" example:"pattern"`
} // @name SelectGameRequest

type InputBody struct {
	UserID    string `json:"user_id"   binding:"required"                example:"user123"`
	Count     int    `json:"count"     binding:"gte=0,lte=100"            example:"1"`
	Direction *int   `json:"direction" binding:"omitempty,gte=0"          example:"2"`
	Item      string `json:"item"      binding:"omitempty,oneof=positive negative feed stone" example:"positive"`
} // @name GameInputRequest

type InputResponse struct {
	Outcome string `json:"outcome" example:"scored"`
} // @name GameInputResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type ListRoomsQuery struct {
	Limit  int `form:"limit,default=20" binding:"gte=0,lte=100"`
	Offset int `form:"offset,default=0" binding:"gte=0"`
} // @name ListRoomsQuery
