package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxhub/internal/domain"
	"voxhub/internal/sfu"
	"voxhub/pkg/apperr"
	"voxhub/pkg/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const outboundQueueSize = 32

// Server is the WebSocket adaptor described in §6 of the spec. One
// Server per process; it implements sfu.Notifier so the router can push
// events back to the right connection.
type Server struct {
	router  *sfu.Router
	cfg     *config.Config
	logger  *zap.SugaredLogger
	connect *connectLimiter

	mu    sync.RWMutex
	conns map[domain.ParticipantID]*connection
}

// NewServer wires a Server around an already-constructed Router.
func NewServer(router *sfu.Router, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	return &Server{
		router:  router,
		cfg:     cfg,
		logger:  logger,
		connect: newConnectLimiter(cfg.RateLimiting),
		conns:   make(map[domain.ParticipantID]*connection),
	}
}

// Notify implements sfu.Notifier: translate a router event into a wire
// message and enqueue it on the named participant's connection, if still
// attached.
func (s *Server) Notify(to domain.ParticipantID, event sfu.Event) {
	s.mu.RLock()
	conn, ok := s.conns[to]
	s.mu.RUnlock()
	if !ok {
		return
	}

	var env Envelope
	var err error
	switch e := event.(type) {
	case sfu.NewPublisherEvent:
		env, err = encode(TypeNewPublisher, NewPublisherPayload{UserID: string(e.SourceID), Username: e.DisplayName})
	case sfu.UserJoinedEvent:
		env, err = encode(TypeUserJoined, UserJoinedPayload{UserID: string(e.ParticipantID), Username: e.DisplayName})
	case sfu.UserLeftEvent:
		env, err = encode(TypeUserLeft, UserLeftPayload{UserID: string(e.ParticipantID), Username: e.DisplayName})
	case sfu.AudioPublishedEvent:
		env, err = encode(TypeAudioPublished, AudioPublishedPayload{TrackID: e.TrackID})
	default:
		s.logger.Warnw("unhandled router event type, dropping", "to", to)
		return
	}
	if err != nil {
		s.logger.Errorw("failed to encode outbound event", "to", to, "error", err)
		return
	}
	conn.enqueue(env)
}

// HandleWebSocket upgrades the request and runs the connection's read/
// write loops until the socket closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.connect.Allow(r) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		server:  s,
		ws:      wsConn,
		send:    make(chan Envelope, outboundQueueSize),
		done:    make(chan struct{}),
		limiter: newConnLimiter(s.cfg.RateLimiting),
		logger:  s.logger,
	}
	if limit := conn.limiter.MaxMessageSize(); limit > 0 {
		wsConn.SetReadLimit(limit)
	}

	go conn.writeLoop(s.cfg.Signal.PingInterval)
	conn.readLoop(s.cfg.Signal.PongTimeout)
}

// HealthCheck reports process liveness plus the current connection
// count, mirroring the shape of ambient health endpoints elsewhere in
// this stack.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := len(s.conns)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": count,
	})
}

// Shutdown closes every attached connection so in-flight readLoops exit
// and their owning participants are torn down. It does not wait for the
// underlying HTTP server; callers typically shut that down afterward.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.ws.Close()
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.RLock()
		remaining := len(s.conns)
		s.mu.RUnlock()
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) attach(id domain.ParticipantID, conn *connection) {
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
}

func (s *Server) detach(id domain.ParticipantID) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// connection is one WebSocket session. It has at most one reader
// goroutine (readLoop, run on the HTTP handler's own goroutine) and
// exactly one writer goroutine (writeLoop) draining send — gorilla's
// websocket.Conn is not safe for concurrent writers.
type connection struct {
	server  *Server
	ws      *websocket.Conn
	send    chan Envelope
	done    chan struct{}
	limiter *connLimiter
	logger  *zap.SugaredLogger

	mu            sync.Mutex
	participantID domain.ParticipantID
	registered    bool
}

func (c *connection) enqueue(env Envelope) {
	select {
	case c.send <- env:
	default:
		c.logger.Warnw("outbound queue full, dropping message", "type", env.Type, "participant", c.currentParticipant())
	}
}

func (c *connection) currentParticipant() domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

func (c *connection) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			return
		case env, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				c.logger.Warnw("write failed, closing connection", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warnw("ping failed, closing connection", "error", err)
				return
			}
		}
	}
}

func (c *connection) readLoop(pongTimeout time.Duration) {
	defer c.closeOut()

	c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		if !c.limiter.AllowMessage() {
			c.sendError(apperr.New(apperr.CodeInternal, "rate limit exceeded"))
			continue
		}
		c.dispatch(env)
	}
}

func (c *connection) closeOut() {
	if id := c.currentParticipant(); id != "" {
		c.server.detach(id)
		c.server.router.RemoveParticipant(id)
	}
	close(c.done)
}

func (c *connection) dispatch(env Envelope) {
	switch env.Type {
	case TypeRegister:
		c.handleRegister(env)
	case TypeCreateRoom:
		c.handleCreateRoom()
	case TypeJoinRoom:
		c.handleJoinRoom(env)
	case TypeLeaveRoom:
		c.handleLeaveRoom()
	case TypeCreatePublisher:
		c.handleCreatePublisher()
	case TypePublishAudio:
		c.handlePublishAudio(env)
	case TypeCreateConsumer:
		c.handleCreateConsumer(env)
	case TypeConsumerAnswer:
		c.handleConsumerAnswer(env)
	case TypePublisherICECandidate:
		c.handlePublisherICE(env)
	case TypeConsumerICECandidate:
		c.handleConsumerICE(env)
	case TypePing:
		c.handlePing()
	default:
		c.sendError(apperr.New(apperr.CodeInternal, "unknown message type: "+env.Type))
	}
}

func (c *connection) handleRegister(env Envelope) {
	var payload RegisterPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(apperr.Wrap(err, apperr.CodeInternal, "invalid register payload"))
		return
	}
	id := c.server.router.RegisterParticipant(payload.Username)
	c.mu.Lock()
	c.participantID = id
	c.registered = true
	c.mu.Unlock()
	c.server.attach(id, c)
	c.sendEnvelope(TypeRegistered, RegisteredPayload{UserID: string(id)})
}

func (c *connection) handleCreateRoom() {
	if _, ok := c.requireRegistered(); !ok {
		return
	}
	room := c.server.router.CreateRoom()
	c.sendEnvelope(TypeRoomCreated, RoomCreatedPayload{RoomID: string(room)})
}

func (c *connection) handleJoinRoom(env Envelope) {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	var payload JoinRoomPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(apperr.Wrap(err, apperr.CodeInternal, "invalid join_room payload"))
		return
	}
	members, existing, appErr := c.server.router.JoinRoom(id, domain.RoomID(payload.RoomID))
	if appErr != nil {
		c.sendError(appErr)
		return
	}
	participants := make([]RoomParticipant, len(members))
	for i, m := range members {
		participants[i] = RoomParticipant{UserID: string(m.ParticipantID), Username: m.DisplayName}
	}
	existingStrs := make([]string, len(existing))
	for i, m := range existing {
		existingStrs[i] = string(m)
	}
	c.sendEnvelope(TypeRoomJoined, RoomJoinedPayload{RoomID: payload.RoomID, Participants: participants, ExistingPublishers: existingStrs})
}

func (c *connection) handleLeaveRoom() {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	if appErr := c.server.router.LeaveRoom(id); appErr != nil {
		c.sendError(appErr)
	}
}

func (c *connection) handleCreatePublisher() {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	offer, appErr := c.server.router.CreatePublisher(id)
	if appErr != nil {
		c.sendError(appErr)
		return
	}
	c.sendEnvelope(TypePublisherCreated, PublisherCreatedPayload{SDP: offer.SDP})
}

func (c *connection) handlePublishAudio(env Envelope) {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	var payload PublishAudioPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(apperr.Wrap(err, apperr.CodeInternal, "invalid publish_audio payload"))
		return
	}
	answer := answerFromString(payload.SDP)
	if appErr := c.server.router.SetPublisherAnswer(id, answer); appErr != nil {
		c.sendError(appErr)
		return
	}
	// audio_published is sent once the track actually arrives (the router's
	// track-captured callback), not here — the id on the wire must name a
	// real track.
}

func (c *connection) handleCreateConsumer(env Envelope) {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	var payload CreateConsumerPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(apperr.Wrap(err, apperr.CodeInternal, "invalid create_consumer payload"))
		return
	}
	offer, appErr := c.server.router.CreateConsumer(id, domain.ParticipantID(payload.PublisherUserID))
	if appErr != nil {
		c.sendError(appErr)
		return
	}
	c.sendEnvelope(TypeConsumerCreated, ConsumerCreatedPayload{PublisherUserID: payload.PublisherUserID, SDP: offer.SDP})
}

func (c *connection) handleConsumerAnswer(env Envelope) {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	var payload ConsumerAnswerPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(apperr.Wrap(err, apperr.CodeInternal, "invalid consumer_answer payload"))
		return
	}
	answer := answerFromString(payload.SDP)
	if appErr := c.server.router.SetConsumerAnswer(id, domain.ParticipantID(payload.PublisherUserID), answer); appErr != nil {
		c.sendError(appErr)
	}
}

func (c *connection) handlePublisherICE(env Envelope) {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	var payload PublisherICECandidatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(apperr.Wrap(err, apperr.CodeInternal, "invalid publisher_ice_candidate payload"))
		return
	}
	if appErr := c.server.router.AddPublisherICE(id, toICECandidateInit(payload.Candidate)); appErr != nil {
		c.sendError(appErr)
	}
}

func (c *connection) handleConsumerICE(env Envelope) {
	id, ok := c.requireRegistered()
	if !ok {
		return
	}
	var payload ConsumerICECandidatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendError(apperr.Wrap(err, apperr.CodeInternal, "invalid consumer_ice_candidate payload"))
		return
	}
	if appErr := c.server.router.AddConsumerICE(id, domain.ParticipantID(payload.PublisherUserID), toICECandidateInit(payload.Candidate)); appErr != nil {
		c.sendError(appErr)
	}
}

func (c *connection) handlePing() {
	c.sendEnvelope(TypePong, PongPayload{})
}

func (c *connection) requireRegistered() (domain.ParticipantID, bool) {
	c.mu.Lock()
	id, registered := c.participantID, c.registered
	c.mu.Unlock()
	if !registered {
		c.sendError(apperr.New(apperr.CodeNotRegistered, "send register before any other message"))
		return "", false
	}
	return id, true
}

func (c *connection) sendEnvelope(msgType string, payload interface{}) {
	env, err := encode(msgType, payload)
	if err != nil {
		c.logger.Errorw("failed to encode outbound message", "type", msgType, "error", err)
		return
	}
	c.enqueue(env)
}

func (c *connection) sendError(appErr *apperr.AppError) {
	c.sendEnvelope(TypeError, ErrorPayload{Code: string(appErr.Code), Message: appErr.Message})
}
