package signal

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"rillnet/internal/core/ports"
	"rillnet/internal/core/relay"
	"rillnet/pkg/config"
	"rillnet/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxFramePayloadBytes = 64 * 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server binds internal/core/relay's room/group/session state machine
// to gorilla/websocket, implementing the WS group relay endpoint.
type Server struct {
	room   *relay.Room
	auth   ports.AuthService
	rate   config.WSRateLimitConfig
	logger *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[*relay.Session]*websocket.Conn
}

// NewServer constructs a relay server over a fresh room.
func NewServer(auth ports.AuthService, rateCfg config.WSRateLimitConfig, logger *zap.SugaredLogger) *Server {
	return &Server{
		room:     relay.NewRoom(),
		auth:     auth,
		rate:     rateCfg,
		logger:   logger,
		sessions: make(map[*relay.Session]*websocket.Conn),
	}
}

// HandleConnect serves `GET /ws/connect/{base64}/`: the path
// segment decodes to ConnectParams, authorization is delegated to the
// configured auth collaborator, and on success the session joins its
// stream's group for the lifetime of the socket.
func (s *Server) HandleConnect(w http.ResponseWriter, r *http.Request) {
	encoded := r.PathValue("base64")
	params, err := relay.DecodeConnectParams(encoded)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid connect params: %v", err), http.StatusBadRequest)
		return
	}

	if !s.authorize(params) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, span := tracing.TraceWebSocketMessage(r.Context(), "connect", fmt.Sprint(params.UserID))
	joinedAt := time.Now()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err, "user_id", params.UserID)
		tracing.RecordError(ctx, err)
		span.End()
		return
	}

	session := relay.NewSession(params.UserID, params.Stream)
	s.room.JoinOrCreate(params.Stream, session)

	s.mu.Lock()
	s.sessions[session] = conn
	s.mu.Unlock()

	s.logger.Infow("relay session joined", "stream", params.Stream, "user_id", params.UserID, "room_id", params.RoomID)

	done := make(chan struct{})
	go s.writeLoop(conn, session, done)
	s.readLoop(conn, session)
	close(done)

	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()

	s.room.LeaveGroup(session)
	conn.Close()

	tracing.MeasureDuration(ctx, joinedAt, "relay.session")
	span.End()
	s.logger.Infow("relay session left", "stream", params.Stream, "user_id", params.UserID)
}

// authorize delegates to the configured auth service, treating the
// connect params' shared_key as the bearer credential.
func (s *Server) authorize(params relay.ConnectParams) bool {
	return s.auth.Authorize("Bearer " + params.SharedKey)
}

// readLoop reads inbound binary frames and routes them until the
// socket errors or closes. Text frames are logged and dropped, never
// routed.
func (s *Server) readLoop(conn *websocket.Conn, session *relay.Session) {
	var limiter *rate.Limiter
	if s.rate.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.rate.MessagesPerSecond), s.rate.Burst)
	}
	conn.SetReadLimit(maxFramePayloadBytes)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.TextMessage {
			s.logger.Debugw("dropped text frame on relay socket", "user_id", session.UserID)
			continue
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if limiter != nil && !limiter.Allow() {
			s.logger.Warnw("relay session exceeded message rate, closing", "user_id", session.UserID)
			return
		}

		if session.State() != relay.StateJoined {
			continue
		}
		relay.Route(session.Group(), session.UserID, payload)
	}
}

// writeLoop drains the session's unicast inbox and group broadcast
// bus into the socket until done fires or the socket errors. Own
// broadcast echoes are suppressed, matching the data-channel fan-out's
// echo-suppression idiom applied to the relay's broadcast bus.
func (s *Server) writeLoop(conn *websocket.Conn, session *relay.Session, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-session.Lagged():
			s.logger.Warnw("relay session lagged, closing socket", "user_id", session.UserID)
			conn.Close()
			return
		case frame, ok := <-session.Inbox():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case frame, ok := <-session.Broadcast():
			if !ok {
				continue
			}
			if from, ok := relay.FrameFrom(frame); ok && from == session.UserID {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}

// Shutdown closes every currently connected relay socket.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for session, conn := range s.sessions {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(s.sessions, session)
	}
}

// ConnectionCount reports how many relay sockets are currently open.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// HealthCheck reports liveness for the process health endpoint.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","connections":%d}`, s.ConnectionCount())
}
