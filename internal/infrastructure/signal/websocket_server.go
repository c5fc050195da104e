package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/services"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/validation"
)

const (
	defaultSendQueueSize = 64
	defaultMaxMessage    = 64 * 1024
)

// Options tune the transport without touching room semantics.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxMessageBytes bounds one inbound frame; SDP bodies fit well
	// under the default.
	MaxMessageBytes int64
	SendQueueSize   int

	// AllowedOrigins is matched against the Origin header. Empty means
	// any origin, for local development.
	AllowedOrigins []string

	// MessagesPerSecond rate limits one connection's inbound frames.
	// Zero disables limiting.
	MessagesPerSecond float64
	MessageBurst      int

	// ICEServers are handed to clients in the welcome message so both
	// ends build their peer connections against the same STUN/TURN set.
	ICEServers []webrtc.ICEServer
}

func (o *Options) withDefaults() {
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout == 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxMessageBytes == 0 {
		o.MaxMessageBytes = defaultMaxMessage
	}
	if o.SendQueueSize == 0 {
		o.SendQueueSize = defaultSendQueueSize
	}
}

// WebSocketServer is the coordinator's transport edge: it upgrades
// connections, registers them for a handle, decodes envelopes and
// dispatches them to the lifecycle manager or the relay. It holds no room
// state of its own.
type WebSocketServer struct {
	registry  ports.ConnectionRegistry
	lifecycle ports.Lifecycle
	relay     ports.SignalRelay
	tokens    services.TokenService
	metrics   ports.ConnMetrics

	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

// Envelope is the wire frame for every inbound message. Payload stays
// opaque for the relayed webrtc-* kinds.
type Envelope struct {
	Type     string          `json:"type"`
	StreamID domain.StreamID `json:"stream_id,omitempty"`
	UserID   domain.UserID   `json:"user_id,omitempty"`
	Target   domain.ConnID   `json:"target,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Welcome is the first frame on every connection; it carries the handle
// the client must quote as target in relayed messages.
type Welcome struct {
	Type         string             `json:"type"`
	ConnectionID domain.ConnID      `json:"connection_id"`
	ICEServers   []webrtc.ICEServer `json:"ice_servers,omitempty"`
}

func NewWebSocketServer(
	registry ports.ConnectionRegistry,
	lifecycle ports.Lifecycle,
	relay ports.SignalRelay,
	tokens services.TokenService,
	metrics ports.ConnMetrics,
	opts Options,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	opts.withDefaults()

	s := &WebSocketServer{
		registry:  registry,
		lifecycle: lifecycle,
		relay:     relay,
		tokens:    tokens,
		metrics:   metrics,
		opts:      opts,
		logger:    logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and runs the connection's read
// loop until the client goes away.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		s.logger.Warnw("rejecting unauthenticated connection", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	wc := newWSConn(conn, s.opts, s.logger)
	connID := s.registry.Register(wc)
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}

	s.logger.Infow("client connected",
		"conn_id", connID,
		"remote", r.RemoteAddr,
		"user_id", userID,
	)

	wc.Send(Welcome{
		Type:         domain.MsgConnected,
		ConnectionID: connID,
		ICEServers:   s.opts.ICEServers,
	})

	s.readLoop(r.Context(), connID, userID, wc)

	// Deregister fires the disconnect reconciliation exactly once,
	// whether the client left cleanly or the socket died.
	s.registry.Deregister(connID)
	wc.Close()
	if s.metrics != nil {
		s.metrics.ConnectionClosed()
	}
	s.logger.Infow("client disconnected", "conn_id", connID)
}

// authenticate extracts the platform access token when verification is
// enabled. With no token service configured every connection is accepted
// and identity comes from the envelope.
func (s *WebSocketServer) authenticate(r *http.Request) (domain.UserID, error) {
	if s.tokens == nil {
		return "", nil
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return "", fmt.Errorf("no token presented")
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *WebSocketServer) readLoop(ctx context.Context, connID domain.ConnID, userID domain.UserID, wc *wsConn) {
	conn := wc.conn
	conn.SetReadLimit(s.opts.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		burst := s.opts.MessageBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), burst)
	}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("read error", "conn_id", connID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			s.sendError(wc, env.StreamID, "rate limit exceeded")
			continue
		}

		s.dispatch(ctx, connID, userID, wc, env)
	}
}

// dispatch routes one envelope. Domain errors come back to the sender as
// stream-error frames; they never terminate the connection.
func (s *WebSocketServer) dispatch(ctx context.Context, connID domain.ConnID, userID domain.UserID, wc *wsConn, env Envelope) {
	// A verified token pins the identity; otherwise the envelope's
	// self-reported user id is used as-is.
	if userID != "" {
		env.UserID = userID
	}

	if domain.IsSignalKind(env.Type) {
		if env.Target == "" {
			s.sendError(wc, env.StreamID, "target is required")
			return
		}
		s.relay.Relay(ctx, env.Type, connID, env.Target, env.Payload)
		return
	}

	var err error
	switch env.Type {
	case domain.MsgStartBroadcast:
		if err = validateRoomRequest(env); err == nil {
			err = s.lifecycle.StartBroadcast(ctx, connID, env.StreamID, env.UserID)
		}
	case domain.MsgJoinStream:
		if err = validateRoomRequest(env); err == nil {
			err = s.lifecycle.JoinStream(ctx, connID, env.StreamID, env.UserID)
		}
	case domain.MsgLeaveStream:
		err = s.lifecycle.LeaveStream(ctx, connID, env.StreamID)
	case domain.MsgEndBroadcast:
		err = s.lifecycle.EndBroadcast(ctx, connID, env.StreamID)
	default:
		s.sendError(wc, env.StreamID, fmt.Sprintf("unknown message type: %s", env.Type))
		return
	}

	if err != nil {
		s.logger.Debugw("request failed",
			"conn_id", connID,
			"type", env.Type,
			"stream_id", env.StreamID,
			"error", err,
		)
		s.sendError(wc, env.StreamID, err.Error())
	}
}

func validateRoomRequest(env Envelope) error {
	if err := validation.ValidateStreamID(int64(env.StreamID)); err != nil {
		return err
	}
	return validation.ValidateUserID(string(env.UserID))
}

func (s *WebSocketServer) sendError(wc *wsConn, streamID domain.StreamID, message string) {
	wc.Send(domain.NewStreamError(streamID, message))
}

// HealthCheck reports liveness and the live connection count.
func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": s.registry.Count(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// wsConn adapts one gorilla connection to ports.Sender. All writes go
// through the buffered queue and a single write pump, which keeps frame
// order equal to enqueue order and keeps the fan-out path non-blocking.
type wsConn struct {
	conn   *websocket.Conn
	sendCh chan any
	done   chan struct{}

	closeOnce sync.Once
	logger    *zap.SugaredLogger
}

func newWSConn(conn *websocket.Conn, opts Options, logger *zap.SugaredLogger) *wsConn {
	wc := &wsConn{
		conn:   conn,
		sendCh: make(chan any, opts.SendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go wc.writePump(opts.PingInterval, opts.WriteTimeout)
	return wc
}

// Send enqueues without blocking. A full queue means the client stopped
// draining; the connection is torn down so its rooms reconcile instead of
// stalling every fan-out behind one slow reader.
func (wc *wsConn) Send(msg any) error {
	select {
	case <-wc.done:
		return domain.ErrConnNotFound
	default:
	}

	select {
	case wc.sendCh <- msg:
		return nil
	default:
		wc.logger.Warnw("send queue overflow, closing connection")
		wc.Close()
		return domain.ErrSendQueueFull
	}
}

func (wc *wsConn) Close() error {
	wc.closeOnce.Do(func() {
		close(wc.done)
	})
	return nil
}

func (wc *wsConn) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		wc.conn.Close()
	}()

	for {
		select {
		case msg := <-wc.sendCh:
			wc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.conn.WriteJSON(msg); err != nil {
				wc.Close()
				return
			}

		case <-ticker.C:
			wc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				wc.Close()
				return
			}

		case <-wc.done:
			// Drain what was already queued before the close frame.
			for {
				select {
				case msg := <-wc.sendCh:
					wc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if wc.conn.WriteJSON(msg) != nil {
						return
					}
				default:
					wc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					wc.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
