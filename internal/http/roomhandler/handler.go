package roomhandler

import (
	"context"
	"errors"
	"net/http"

	"aquaroom/internal/game"
	"aquaroom/internal/lobby"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	presence lobby.IPresenceService
	games    game.IGameService
}

func New(presence lobby.IPresenceService, games game.IGameService) *Handler {
	return &Handler{presence: presence, games: games}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/rooms", h.create)
	r.GET("/rooms", h.list)
	r.GET("/rooms/:id", h.info)
	r.POST("/rooms/:id/join", h.join)
	r.POST("/rooms/:id/leave", h.leave)
	r.POST("/rooms/:id/ready", h.ready)
	r.POST("/rooms/:id/unready", h.unready)
	r.POST("/rooms/:id/kick", h.kick)
	r.POST("/rooms/:id/clear-ready", h.clearReady)
	r.POST("/rooms/:id/chat", h.chat)
	r.POST("/rooms/:id/select-game", h.selectGame)
	r.GET("/rooms/:id/game", h.scoreboard)
	r.POST("/rooms/:id/game/start", h.startGame)
	r.POST("/rooms/:id/game/input", h.input)
	r.POST("/rooms/:id/game/end", h.endGame)
}

// @Summary		Create a room
// @Description	Creates a lobby whose owner is its only member.
// @Tags			Rooms
// @Param			body	body		CreateRoomBody	true	"Owner payload"
// @Success		201		{object}	lobby.Snapshot
// @Failure		400		{object}	ErrorResponse
// @Router			/rooms [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateRoomBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusCreated, h.presence.CreateRoom(body.OwnerID))
}

// @Summary		List rooms
// @Description	Retrieves a paginated list of open rooms, oldest first.
// @Tags			Rooms
// @Param			limit	query		int	false	"Max results (0-100)"	minimum(0)	maximum(100)	default(20)
// @Param			offset	query		int	false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		lobby.Snapshot
// @Failure		400		{object}	ErrorResponse
// @Router			/rooms [get]
func (h *Handler) list(ginCtx *gin.Context) {
	var q ListRoomsQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	rooms := h.presence.Rooms()
	start := min(q.Offset, len(rooms))
	end := min(start+q.Limit, len(rooms))
	ginCtx.JSON(http.StatusOK, rooms[start:end])
}

// @Summary		Get room details
// @Tags			Rooms
// @Param			id	path		string	true	"Room ID"
// @Success		200	{object}	lobby.Snapshot
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id} [get]
func (h *Handler) info(ginCtx *gin.Context) {
	snap, err := h.presence.Room(ginCtx.Param("id"))
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, snap)
}

// @Summary		Join a room
// @Tags			Rooms
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	MemberBody	true	"Member payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/join [post]
func (h *Handler) join(ginCtx *gin.Context) {
	h.memberAction(ginCtx, h.presence.Join)
}

// @Summary		Leave a room
// @Tags			Rooms
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	MemberBody	true	"Member payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/leave [post]
func (h *Handler) leave(ginCtx *gin.Context) {
	h.memberAction(ginCtx, h.presence.Leave)
}

// @Summary		Mark ready
// @Tags			Rooms
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	MemberBody	true	"Member payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Router			/rooms/{id}/ready [post]
func (h *Handler) ready(ginCtx *gin.Context) {
	h.memberAction(ginCtx, h.presence.MarkReady)
}

// @Summary		Withdraw readiness
// @Tags			Rooms
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	MemberBody	true	"Member payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Router			/rooms/{id}/unready [post]
func (h *Handler) unready(ginCtx *gin.Context) {
	h.memberAction(ginCtx, h.presence.UnmarkReady)
}

// @Summary		Kick a member
// @Description	Only the owner can kick; other requests are accepted and ignored.
// @Tags			Rooms
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	KickBody	true	"Kick payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/kick [post]
func (h *Handler) kick(ginCtx *gin.Context) {
	var body KickBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	err := h.presence.Kick(ginCtx.Request.Context(), ginCtx.Param("id"), body.TargetID, body.RequesterID)
	h.reply(ginCtx, err)
}

// @Summary		Clear readiness
// @Description	Owner puts the lobby back in its pre-game state.
// @Tags			Rooms
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	OwnerBody	true	"Owner payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/clear-ready [post]
func (h *Handler) clearReady(ginCtx *gin.Context) {
	var body OwnerBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	roomID := ginCtx.Param("id")
	err := h.requireOwner(roomID, body.RequesterID)
	if err == nil {
		err = h.presence.ClearReadiness(ginCtx.Request.Context(), roomID)
	}
	h.reply(ginCtx, err)
}

// @Summary		Send a chat message
// @Tags			Rooms
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	ChatBody	true	"Chat payload"
// @Success		202
// @Failure		400	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Router			/rooms/{id}/chat [post]
func (h *Handler) chat(ginCtx *gin.Context) {
	var body ChatBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	err := h.presence.SendChat(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID, body.Content)
	h.reply(ginCtx, err)
}

// @Summary		Select the next game
// @Tags			Rooms
// @Param			id		path	string			true	"Room ID"
// @Param			body	body	SelectGameBody	true	"Selection payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/select-game [post]
func (h *Handler) selectGame(ginCtx *gin.Context) {
	var body SelectGameBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	err := h.presence.SelectGame(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID, body.Variant)
	h.reply(ginCtx, err)
}

// @Summary		Get the scoreboard
// @Description	Returns the board of the latest round in the room.
// @Tags			Games
// @Param			id	path		string	true	"Room ID"
// @Success		200	{object}	game.Scoreboard
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/game [get]
func (h *Handler) scoreboard(ginCtx *gin.Context) {
	sb, ok := h.games.Scoreboard(ginCtx.Param("id"))
	if !ok {
		writeError(ginCtx, game.ErrNoActiveGame)
		return
	}
	ginCtx.JSON(http.StatusOK, sb)
}

// @Summary		Start a round
// @Description	Owner starts a round of the given variant for every member.
// @Tags			Games
// @Param			id		path	string			true	"Room ID"
// @Param			body	body	StartGameBody	true	"Start payload"
// @Success		202
// @Failure		400	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Router			/rooms/{id}/game/start [post]
func (h *Handler) startGame(ginCtx *gin.Context) {
	var body StartGameBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	v, err := game.ParseVariant(body.Variant)
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	roomID := ginCtx.Param("id")
	err = h.requireOwner(roomID, body.RequesterID)
	if err == nil {
		err = h.games.StartGame(ginCtx.Request.Context(), roomID, v)
	}
	h.reply(ginCtx, err)
}

// @Summary		Submit a game input
// @Tags			Games
// @Param			id		path		string		true	"Room ID"
// @Param			body	body		InputBody	true	"Input payload"
// @Success		200		{object}	InputResponse
// @Failure		400		{object}	ErrorResponse
// @Failure		404		{object}	ErrorResponse
// @Router			/rooms/{id}/game/input [post]
func (h *Handler) input(ginCtx *gin.Context) {
	var body InputBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	outcome, err := h.games.SubmitInput(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID, game.Input{
		Count:     body.Count,
		Direction: body.Direction,
		Item:      body.Item,
	})
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, InputResponse{Outcome: outcome.String()})
}

// @Summary		End a round
// @Description	Owner ends the round; unfinished players are ranked by score.
// @Tags			Games
// @Param			id		path	string		true	"Room ID"
// @Param			body	body	OwnerBody	true	"Owner payload"
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id}/game/end [post]
func (h *Handler) endGame(ginCtx *gin.Context) {
	var body OwnerBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	roomID := ginCtx.Param("id")
	err := h.requireOwner(roomID, body.RequesterID)
	if err == nil {
		err = h.games.EndGame(ginCtx.Request.Context(), roomID)
	}
	h.reply(ginCtx, err)
}

func (h *Handler) memberAction(ginCtx *gin.Context, op func(ctx context.Context, roomID, userID string) error) {
	var body MemberBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	h.reply(ginCtx, op(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID))
}

func (h *Handler) requireOwner(roomID, requesterID string) error {
	snap, err := h.presence.Room(roomID)
	if err != nil {
		return err
	}
	if snap.OwnerID != requesterID {
		zap.L().Info("http.owner_only_declined", zap.String("room_id", roomID), zap.String("user_id", requesterID))
		return lobby.ErrNotAuthorized
	}
	return nil
}

// reply answers 202 for success and for requests declined without notice.
func (h *Handler) reply(ginCtx *gin.Context, err error) {
	if err != nil && !errors.Is(err, lobby.ErrNotAuthorized) {
		writeError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

func writeError(ginCtx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lobby.ErrRoomNotFound), errors.Is(err, game.ErrNoActiveGame):
		status = http.StatusNotFound
	case errors.Is(err, lobby.ErrNotMember), errors.Is(err, game.ErrGameInProgress):
		status = http.StatusConflict
	case errors.Is(err, lobby.ErrInvalidChat), errors.Is(err, game.ErrInvalidInput),
		errors.Is(err, game.ErrUnknownVariant), errors.Is(err, game.ErrNoPlayers):
		status = http.StatusBadRequest
	default:
		zap.L().Error("http.handler_failed", zap.String("path", ginCtx.FullPath()), zap.Error(err))
	}
	ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
}
