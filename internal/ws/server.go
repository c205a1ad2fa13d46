package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"aquaroom/internal/game"
	"aquaroom/internal/lobby"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 12 * time.Second
	pingPeriod     = 3 * time.Second // must be < pongWait
	maxMessageSize = 4096
	handlerTimeout = 1900 * time.Millisecond
)

// DisconnectHandler is told when the last connection of a member drops
// without an explicit leave.
type DisconnectHandler interface {
	OnDisconnect(roomID, userID string)
}

type Options struct {
	AllowedOrigins []string
	InputRate      float64
	InputBurst     int
}

type sessionKey struct {
	roomID string
	userID string
}

type WsServer struct {
	hub      *Hub
	subMgr   fanIn
	router   *Router
	upgrader websocket.Upgrader
	opts     Options

	presence lobby.IPresenceService
	games    game.IGameService
	grace    DisconnectHandler

	mu       sync.Mutex
	sessions map[sessionKey]int
}

func NewWsServer(h *Hub, rdc *redis.Client, presence lobby.IPresenceService, games game.IGameService, grace DisconnectHandler, opts Options) *WsServer {
	return newWsServer(h, newSubscriptionManager(rdc, h), presence, games, grace, opts)
}

func newWsServer(h *Hub, subs fanIn, presence lobby.IPresenceService, games game.IGameService, grace DisconnectHandler, opts Options) *WsServer {
	srv := &WsServer{
		hub:      h,
		subMgr:   subs,
		router:   NewRouter(),
		opts:     opts,
		presence: presence,
		games:    games,
		grace:    grace,
		sessions: make(map[sessionKey]int),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.checkOrigin,
	}
	srv.registerHandlers() // all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

// Handle joins the caller to the room and upgrades the connection. Joining a
// room the caller is still a member of is a reconnect.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	roomID := ginCtx.Query("room_id")
	userID := ginCtx.Query("user_id")
	if roomID == "" || userID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "room_id and user_id are required"})
		return
	}

	if err := s.presence.Join(ginCtx.Request.Context(), roomID, userID); err != nil {
		if errors.Is(err, lobby.ErrRoomNotFound) {
			ginCtx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		ginCtx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		// the join above still counts; let the grace period undo it
		zap.L().Warn("ws.accept", zap.String("room_id", roomID), zap.Error(err))
		if !s.hasSession(roomID, userID) {
			s.grace.OnDisconnect(roomID, userID)
		}
		return
	}
	rawConn.SetReadLimit(maxMessageSize)

	conn := &clientConn{rawConn: rawConn}
	s.openSession(roomID, userID)
	s.subMgr.Subscribe(roomID)
	s.hub.Join(roomID, conn)
	zap.L().Info("ws.accept", zap.String("room_id", roomID), zap.String("user_id", userID))

	if err := s.pushUserList(ginCtx.Request.Context(), roomID, conn); err != nil {
		zap.L().Warn("ws.snapshot", zap.String("room_id", roomID), zap.Error(err))
	}

	cc := &ConnContext{RoomID: roomID, UserID: userID}
	go s.reader(cc, conn)
	go s.pinger(conn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, EventLeave, func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
		cc.markLeft()
		return AckBody{}, s.presence.Leave(ctx, cc.RoomID, cc.UserID)
	})
	Register(s.router, EventReady, func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
		return AckBody{}, s.presence.MarkReady(ctx, cc.RoomID, cc.UserID)
	})
	Register(s.router, EventUnready, func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
		return AckBody{}, s.presence.UnmarkReady(ctx, cc.RoomID, cc.UserID)
	})
	Register(s.router, EventKick, func(ctx context.Context, cc *ConnContext, req KickRequest) (AckBody, error) {
		return AckBody{}, s.presence.Kick(ctx, cc.RoomID, req.UserID, cc.UserID)
	})
	Register(s.router, EventClearReady, func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
		if err := s.requireOwner(cc); err != nil {
			return AckBody{}, err
		}
		return AckBody{}, s.presence.ClearReadiness(ctx, cc.RoomID)
	})
	Register(s.router, EventChat, func(ctx context.Context, cc *ConnContext, req ChatRequest) (AckBody, error) {
		return AckBody{}, s.presence.SendChat(ctx, cc.RoomID, cc.UserID, req.Content)
	})
	Register(s.router, EventSelectGame, func(ctx context.Context, cc *ConnContext, req VariantRequest) (AckBody, error) {
		v, err := game.ParseVariant(req.Variant)
		if err != nil {
			return AckBody{}, err
		}
		return AckBody{}, s.presence.SelectGame(ctx, cc.RoomID, cc.UserID, string(v))
	})
	Register(s.router, EventGameStart, func(ctx context.Context, cc *ConnContext, req VariantRequest) (AckBody, error) {
		v, err := game.ParseVariant(req.Variant)
		if err != nil {
			return AckBody{}, err
		}
		if err := s.requireOwner(cc); err != nil {
			return AckBody{}, err
		}
		return AckBody{}, s.games.StartGame(ctx, cc.RoomID, v)
	})
	Register(s.router, EventGameInput, func(ctx context.Context, cc *ConnContext, req InputRequest) (InputAck, error) {
		outcome, err := s.games.SubmitInput(ctx, cc.RoomID, cc.UserID, game.Input{
			Count:     req.Count,
			Direction: req.Direction,
			Item:      req.Item,
		})
		return InputAck{Outcome: outcome.String()}, err
	})
	Register(s.router, EventGameEnd, func(ctx context.Context, cc *ConnContext, _ AckBody) (AckBody, error) {
		if err := s.requireOwner(cc); err != nil {
			return AckBody{}, err
		}
		return AckBody{}, s.games.EndGame(ctx, cc.RoomID)
	})
}

func (s *WsServer) requireOwner(cc *ConnContext) error {
	snap, err := s.presence.Room(cc.RoomID)
	if err != nil {
		return err
	}
	if snap.OwnerID != cc.UserID {
		zap.L().Info("ws.owner_only_declined", zap.String("room_id", cc.RoomID), zap.String("user_id", cc.UserID))
		return lobby.ErrNotAuthorized
	}
	return nil
}

func (s *WsServer) pushUserList(ctx context.Context, roomID string, conn *clientConn) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	msg, err := s.presence.UserList(ctx, roomID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wrapped, err := wrapRoomEvent(data)
	if err != nil {
		return err
	}
	return conn.write(websocket.TextMessage, wrapped)
}

func (s *WsServer) reader(cc *ConnContext, conn *clientConn) {
	defer func() {
		s.hub.Leave(cc.RoomID, conn)
		s.subMgr.Unsubscribe(cc.RoomID)
		if s.closeSession(cc.RoomID, cc.UserID) && !cc.hasLeft() {
			s.grace.OnDisconnect(cc.RoomID, cc.UserID)
		}
		zap.L().Info("ws.closed", zap.String("room_id", cc.RoomID), zap.String("user_id", cc.UserID))
	}()

	limiter := rate.NewLimiter(rate.Limit(s.opts.InputRate), s.opts.InputBurst)
	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("ws.read", zap.String("room_id", cc.RoomID), zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = conn.writeJSON(Envelope{Event: EventError, Body: errorBody("invalid_request")})
			continue
		}
		if !limiter.Allow() {
			zap.L().Debug("ws.rate_limited", zap.String("room_id", cc.RoomID), zap.String("user_id", cc.UserID))
			_ = conn.writeJSON(Envelope{Event: EventError, Body: errorBody("rate_limited")})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		switch {
		case errors.Is(err, lobby.ErrNotAuthorized):
			// declined without telling the client
		case err != nil:
			_ = conn.writeJSON(Envelope{Event: EventError, Body: errorBody(errorCode(err))})
		default:
			reply := map[string]any{"event": env.Event + eventAckSuffix}
			if res != nil {
				reply["body"] = res
			}
			_ = conn.writeJSON(reply)
		}

		if cc.hasLeft() {
			return
		}
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.ping(); err != nil {
			conn.close(websocket.CloseGoingAway, "ping timeout")
			return
		}
	}
}

func (s *WsServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *WsServer) openSession(roomID, userID string) {
	s.mu.Lock()
	s.sessions[sessionKey{roomID, userID}]++
	s.mu.Unlock()
}

func (s *WsServer) hasSession(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey{roomID, userID}] > 0
}

// closeSession reports whether the last connection of the member closed.
func (s *WsServer) closeSession(roomID, userID string) bool {
	key := sessionKey{roomID, userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key]--
	if s.sessions[key] > 0 {
		return false
	}
	delete(s.sessions, key)
	return true
}

func errorBody(code string) json.RawMessage {
	data, _ := json.Marshal(ErrorBody{Error: code})
	return data
}

func errorCode(err error) string {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return "invalid_request"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, lobby.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, lobby.ErrNotMember):
		return "not_member"
	case errors.Is(err, lobby.ErrInvalidChat):
		return "invalid_chat"
	case errors.Is(err, game.ErrUnknownVariant):
		return "unknown_variant"
	case errors.Is(err, game.ErrGameInProgress):
		return "game_in_progress"
	case errors.Is(err, game.ErrNoActiveGame):
		return "no_active_game"
	case errors.Is(err, game.ErrNoPlayers):
		return "no_players"
	case errors.Is(err, game.ErrInvalidInput):
		return "invalid_input"
	}
	zap.L().Warn("ws.handler_failed", zap.Error(err))
	return "internal_error"
}
