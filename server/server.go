package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/gonu/broadcast"
	"github.com/wfunc/gonu/config"
	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/monitor"
	"github.com/wfunc/gonu/network"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/room"
	gonu_rpc "github.com/wfunc/gonu/rpc"
	"github.com/wfunc/gonu/rules"
	"github.com/wfunc/gonu/services"
	"github.com/wfunc/gonu/session"
	"github.com/wfunc/gonu/state"
)

const (
	heartbeatInterval = 30 * time.Second
	actionTimeout     = 10 * time.Second
	leaveTimeout      = 3 * time.Second
)

// 大厅操作名，用于 ActionResult
const (
	actionCreate = "create"
	actionOpen   = "open"
)

type GameServer struct {
	cfg            *config.Config
	store          persistence.Store
	roomManager    *room.Manager
	sessionManager *session.Manager
	matchService   *services.MatchService
	broadcaster    broadcast.Broadcaster
	monitor        *monitor.Monitor
	rpcServer      *gonu_rpc.Server
	upgrader       websocket.Upgrader
	httpServer     *http.Server
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

// NewGameServer wires the rooms, connections and admin RPC around store.
func NewGameServer(cfg *config.Config, store persistence.Store, archive persistence.MatchArchive, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		store:          store,
		sessionManager: session.NewManager(),
		matchService:   services.NewMatchService(archive),
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.roomManager = room.NewRoomManager(room.ManagerOptions{
		Store:        store,
		Recorder:     s.matchService,
		Monitor:      mon,
		Clock:        cfg.Game.Settings,
		TickInterval: cfg.Game.TickInterval,
	})

	// 初始化广播器
	b := broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	s.roomManager.SetBroadcaster(b)
	s.broadcaster = b

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP surface: websocket, boards, invites, health and metrics.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.routes(mux)
	return mux
}

// Start serves the admin RPC and HTTP until Shutdown.
func (s *GameServer) Start() error {
	rpcServer, err := gonu_rpc.Listen(s.cfg.Server.RPCAddress, gonu_rpc.NewAdminService(s.store, s.matchService))
	if err != nil {
		return err
	}
	s.rpcServer = rpcServer
	go func() {
		if err := rpcServer.Start(); err != nil {
			logger.Log.Errorf("RPC server stopped: %v", err)
		}
	}()

	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes every room and the RPC server.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		err = s.httpServer.Shutdown(ctx)
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		s.roomManager.Close()
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
	})
	return err
}

// userIDFrom reads the identity set by the upstream auth layer.
func userIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("user")
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, userID)
}

func (s *GameServer) handleConnection(conn *websocket.Conn, userID string) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(heartbeatInterval)
	sess := session.NewSession(uuid.New().String(), userID, wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s, user: %s", wsConn.RemoteAddr(), sess.GetID(), userID)

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.leaveOnDisconnect(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}
		packet, err := wsConn.ReadPacket()
		if err != nil {
			var netErr net.Error
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !(errors.As(err, &netErr) && netErr.Timeout()) {
				logger.Log.Debugf("read from session %s: %v", sess.GetID(), err)
			}
			return
		}
		s.handlePacket(sess, packet)
	}
}

// leaveOnDisconnect is the best-effort leave of a closing connection. It is
// skipped while the same user still has another connection on the game.
func (s *GameServer) leaveOnDisconnect(sess *session.Session) {
	gameID := sess.GameID()
	if gameID == "" {
		return
	}
	r, exists := s.roomManager.GetRoom(gameID)
	if !exists {
		return
	}
	r.RemovePlayer(sess.GetID())

	for _, other := range r.GetSessions() {
		if other.UserID == sess.UserID {
			return
		}
	}
	if !r.Snapshot().IsPlayer(sess.UserID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := r.Do(ctx, sess, state.Action{Type: state.ActionLeave}); err != nil {
		logger.Log.Infof("leave on disconnect of %s from %s: %v", sess.UserID, gameID, err)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
		sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeCreateGame:
		s.handleCreateGame(sess, packet)
	case network.MsgTypeJoinGame:
		s.handleJoinGame(sess, packet)
	case network.MsgTypeOpenGame:
		s.handleOpenGame(sess, packet)
	case network.MsgTypeLeaveGame:
		s.handleLeaveGame(sess)
	case network.MsgTypeReady:
		s.handleGameAction(sess, state.Action{Type: state.ActionReady})
	case network.MsgTypeSurrender:
		s.handleGameAction(sess, state.Action{Type: state.ActionSurrender})
	case network.MsgTypePlace:
		var req network.PlaceRequest
		if s.decode(sess, packet, &req) {
			s.handleGameAction(sess, state.Action{Type: state.ActionPlace, Node: req.Node})
		}
	case network.MsgTypeMove:
		var req network.MoveRequest
		if s.decode(sess, packet, &req) {
			s.handleGameAction(sess, state.Action{Type: state.ActionMove, From: req.From, To: req.To})
		}
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		sess.SendMessage(network.MsgTypeError, network.ErrorMessage{Message: "unknown message type"})
	}
}

func (s *GameServer) decode(sess *session.Session, packet *network.Packet, v any) bool {
	if err := network.Unmarshal(packet.Data, v); err != nil {
		sess.SendMessage(network.MsgTypeError, network.ErrorMessage{Message: "malformed payload"})
		return false
	}
	return true
}

func (s *GameServer) handleCreateGame(sess *session.Session, packet *network.Packet) {
	var req network.CreateGameRequest
	if !s.decode(sess, packet, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	r, err := s.roomManager.CreateGame(ctx, sess.UserID, req.MapID, req.Title)
	if err != nil {
		s.reply(sess, actionCreate, err)
		return
	}
	s.attach(sess, r)
	logger.Log.Infof("Session %s created game %s", sess.GetID(), r.ID)
	s.reply(sess, actionCreate, nil)
}

func (s *GameServer) handleJoinGame(sess *session.Session, packet *network.Packet) {
	var req network.GameRequest
	if !s.decode(sess, packet, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	r, err := s.roomManager.OpenGame(ctx, req.GameID)
	if err != nil {
		s.reply(sess, state.ActionJoin, err)
		return
	}
	s.attach(sess, r)
	err = r.Do(ctx, sess, state.Action{Type: state.ActionJoin})
	if err != nil && !r.Snapshot().IsPlayer(sess.UserID) {
		r.RemovePlayer(sess.GetID())
	}
	s.reply(sess, state.ActionJoin, err)
}

// handleOpenGame reattaches a player to a game, e.g. after a reconnect.
func (s *GameServer) handleOpenGame(sess *session.Session, packet *network.Packet) {
	var req network.GameRequest
	if !s.decode(sess, packet, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	r, err := s.roomManager.OpenGame(ctx, req.GameID)
	if err != nil {
		s.reply(sess, actionOpen, err)
		return
	}
	if !r.Snapshot().IsPlayer(sess.UserID) {
		s.reply(sess, actionOpen, rules.Reject("you are not a player in this game"))
		return
	}
	s.attach(sess, r)
	s.reply(sess, actionOpen, nil)
}

func (s *GameServer) handleLeaveGame(sess *session.Session) {
	r, ok := s.currentRoom(sess, state.ActionLeave)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	err := r.Do(ctx, sess, state.Action{Type: state.ActionLeave})
	if err == nil {
		r.RemovePlayer(sess.GetID())
	}
	s.reply(sess, state.ActionLeave, err)
}

func (s *GameServer) handleGameAction(sess *session.Session, action state.Action) {
	r, ok := s.currentRoom(sess, action.Type)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	s.reply(sess, action.Type, r.Do(ctx, sess, action))
}

func (s *GameServer) currentRoom(sess *session.Session, action string) (*room.Room, bool) {
	gameID := sess.GameID()
	if gameID == "" {
		s.reply(sess, action, rules.Reject("you are not in a game"))
		return nil, false
	}
	r, exists := s.roomManager.GetRoom(gameID)
	if !exists {
		sess.SetGameID("")
		s.reply(sess, action, room.ErrRoomClosed)
		return nil, false
	}
	return r, true
}

// attach moves the connection into r and sends it the current record.
func (s *GameServer) attach(sess *session.Session, r *room.Room) {
	if prev := sess.GameID(); prev != "" && prev != r.ID {
		if old, exists := s.roomManager.GetRoom(prev); exists {
			old.RemovePlayer(sess.GetID())
		}
	}
	if !r.AddPlayer(sess) {
		return
	}
	if err := r.SendSync(sess); err != nil {
		logger.Log.Debugf("sync to session %s failed: %v", sess.GetID(), err)
	}
}

// reply reports the outcome of an action to the acting connection only.
func (s *GameServer) reply(sess *session.Session, action string, err error) {
	result := network.ActionResult{Action: action, Valid: err == nil}
	if err != nil {
		result.Reason = reasonOf(err)
	}
	if sendErr := sess.SendMessage(network.MsgTypeActionResult, result); sendErr != nil {
		logger.Log.Debugf("reply to session %s failed: %v", sess.GetID(), sendErr)
	}
}

func reasonOf(err error) string {
	var rejection *rules.Rejection
	switch {
	case errors.As(err, &rejection):
		return rejection.Reason
	case errors.Is(err, rules.ErrUnsupportedVariant):
		return "unsupported variant"
	case errors.Is(err, persistence.ErrNotFound):
		return "game not found"
	case errors.Is(err, room.ErrRoomClosed):
		return "the game is closed"
	case errors.Is(err, context.DeadlineExceeded):
		return "the server took too long, try again"
	}
	logger.Log.Errorf("action failed: %v", err)
	return "the game could not be saved, try again"
}
