// Package sfu is the registry and coordinator described in spec §4.5: it
// owns every publisher and consumer by identity, maintains room
// membership, and exposes the operations the signaling layer invokes.
// Registry mutations happen under a single write lock that is always
// released before any network operation (peer-connection call, event
// emission) is attempted.
package sfu

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"voxhub/internal/domain"
	"voxhub/internal/metrics"
	"voxhub/internal/webrtc"

	pionwebrtc "github.com/pion/webrtc/v3"

	"voxhub/pkg/apperr"
	"voxhub/pkg/idgen"
)

// Event is one of the outbound notifications the router emits as a side
// effect of a registry mutation (§4.5's fan-out policies). The signaling
// adaptor is the only consumer of these and translates them to wire
// messages (§6.1).
type Event interface{ isEvent() }

type NewPublisherEvent struct {
	SourceID    domain.ParticipantID
	DisplayName string
}

type UserJoinedEvent struct {
	ParticipantID domain.ParticipantID
	DisplayName   string
}

type UserLeftEvent struct {
	ParticipantID domain.ParticipantID
	DisplayName   string
}

// AudioPublishedEvent is delivered to the publisher itself once its track
// has been captured, carrying the id the SFU will use when consumers bind
// to it.
type AudioPublishedEvent struct {
	TrackID string
}

func (NewPublisherEvent) isEvent()   {}
func (UserJoinedEvent) isEvent()     {}
func (UserLeftEvent) isEvent()       {}
func (AudioPublishedEvent) isEvent() {}

// Notifier delivers a router-emitted event to one participant. Pushing
// must never block on the router's registry lock; implementations
// typically enqueue onto a per-connection outbound channel.
type Notifier interface {
	Notify(to domain.ParticipantID, event Event)
}

// Router is the SFU's single coordinator. One Router per process; it
// outlives every session it owns.
type Router struct {
	factory  *webrtc.Factory
	metrics  *metrics.Collector
	notifier Notifier
	logger   *zap.SugaredLogger

	mu           sync.RWMutex
	participants map[domain.ParticipantID]*domain.Participant
	rooms        map[domain.RoomID]*domain.Room
	publishers   map[domain.ParticipantID]*webrtc.Publisher
	consumers    map[domain.ConsumerKey]*webrtc.Consumer
}

// New constructs an empty Router.
func New(factory *webrtc.Factory, collector *metrics.Collector, notifier Notifier, logger *zap.SugaredLogger) *Router {
	return &Router{
		factory:      factory,
		metrics:      collector,
		notifier:     notifier,
		logger:       logger,
		participants: make(map[domain.ParticipantID]*domain.Participant),
		rooms:        make(map[domain.RoomID]*domain.Room),
		publishers:   make(map[domain.ParticipantID]*webrtc.Publisher),
		consumers:    make(map[domain.ConsumerKey]*webrtc.Consumer),
	}
}

// RegisterParticipant creates a new participant identity and returns its
// id. Registration of identity is nominally owned by the signaling
// adaptor (spec §2); the router provides the backing store since it must
// resolve participant ids for every other operation.
func (r *Router) RegisterParticipant(displayName string) domain.ParticipantID {
	id := domain.ParticipantID(idgen.NewParticipantID())
	r.mu.Lock()
	r.participants[id] = &domain.Participant{
		ID:          id,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
	}
	r.mu.Unlock()
	return id
}

// CreateRoom allocates a new, empty room.
func (r *Router) CreateRoom() domain.RoomID {
	id := domain.RoomID(idgen.NewRoomID())
	r.mu.Lock()
	r.rooms[id] = domain.NewRoom(id)
	r.mu.Unlock()
	r.metrics.RoomCreated()
	return id
}

// Member identifies one room member by id and display name, the shape
// the signaling adaptor needs to populate room_joined's participant list
// (§6.1) without a second round trip through the registry.
type Member struct {
	ParticipantID domain.ParticipantID
	DisplayName   string
}

// JoinRoom adds participantID to roomID's member set and returns the
// current membership plus the set of participants with a captured
// publisher track, so the caller can issue one create_consumer per
// existing publisher (§4.5 "on a new member joining a room").
func (r *Router) JoinRoom(participantID domain.ParticipantID, roomID domain.RoomID) ([]Member, []domain.ParticipantID, *apperr.AppError) {
	r.mu.Lock()
	participant, ok := r.participants[participantID]
	if !ok {
		r.mu.Unlock()
		return nil, nil, apperr.New(apperr.CodeNotRegistered, "participant not registered")
	}
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return nil, nil, apperr.New(apperr.CodeRoomNotFound, "room not found")
	}

	room.Members[participantID] = struct{}{}
	participant.RoomID = roomID

	members := make([]Member, 0, len(room.Members))
	for m := range room.Members {
		if p, ok := r.participants[m]; ok {
			members = append(members, Member{ParticipantID: m, DisplayName: p.DisplayName})
		}
	}

	var existingPublishers []domain.ParticipantID
	for m := range room.Members {
		if m == participantID {
			continue
		}
		if pub, ok := r.publishers[m]; ok && pub.RemoteTrack() != nil {
			existingPublishers = append(existingPublishers, m)
		}
	}
	others := otherMembers(room, participantID)
	r.mu.Unlock()

	for _, other := range others {
		r.notifier.Notify(other, UserJoinedEvent{ParticipantID: participantID, DisplayName: participant.DisplayName})
	}

	return members, existingPublishers, nil
}

// LeaveRoom removes participantID from its room (publisher/consumer
// teardown per §4.5) without destroying the participant identity itself.
func (r *Router) LeaveRoom(participantID domain.ParticipantID) *apperr.AppError {
	return r.teardown(participantID, false)
}

// RemoveParticipant tears down everything the participant owns — its
// publisher, every consumer where it is subscriber or source — and
// deletes the participant identity. Called when the signaling session
// ends.
func (r *Router) RemoveParticipant(participantID domain.ParticipantID) *apperr.AppError {
	return r.teardown(participantID, true)
}

func (r *Router) teardown(participantID domain.ParticipantID, destroyIdentity bool) *apperr.AppError {
	r.mu.Lock()
	participant, ok := r.participants[participantID]
	if !ok {
		r.mu.Unlock()
		return apperr.New(apperr.CodeNotRegistered, "participant not registered")
	}
	roomID := participant.RoomID

	var toClosePublishers []*webrtc.Publisher
	var toCloseConsumers []*webrtc.Consumer

	if pub, ok := r.publishers[participantID]; ok {
		toClosePublishers = append(toClosePublishers, pub)
		delete(r.publishers, participantID)
	}

	for key, c := range r.consumers {
		if key.Subscriber == participantID || key.Source == participantID {
			toCloseConsumers = append(toCloseConsumers, c)
			delete(r.consumers, key)
		}
	}

	var others []domain.ParticipantID
	roomNowEmpty := false
	if room, ok := r.rooms[roomID]; ok && roomID != "" {
		delete(room.Members, participantID)
		others = otherMembers(room, participantID)
		participant.RoomID = ""
		if len(room.Members) == 0 {
			delete(r.rooms, roomID)
			roomNowEmpty = true
		}
	}

	if destroyIdentity {
		delete(r.participants, participantID)
	}
	r.mu.Unlock()

	for _, c := range toCloseConsumers {
		c.Close()
		r.metrics.ConsumerRemoved(roomID)
	}
	for _, p := range toClosePublishers {
		p.Close()
		r.metrics.PublisherRemoved(roomID)
	}
	if roomNowEmpty {
		r.metrics.RoomDestroyed()
	}
	for _, other := range others {
		r.notifier.Notify(other, UserLeftEvent{ParticipantID: participantID, DisplayName: participant.DisplayName})
	}
	return nil
}

// CreatePublisher allocates a publisher session for participantID (§4.2,
// §4.5). Fails with ALREADY_PUBLISHING if one is already registered.
func (r *Router) CreatePublisher(participantID domain.ParticipantID) (pionwebrtc.SessionDescription, *apperr.AppError) {
	r.mu.Lock()
	participant, ok := r.participants[participantID]
	if !ok {
		r.mu.Unlock()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeNotRegistered, "participant not registered")
	}
	if _, exists := r.publishers[participantID]; exists {
		r.mu.Unlock()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeAlreadyPublishing, "publisher already exists")
	}
	roomID := participant.RoomID
	r.mu.Unlock()

	if roomID == "" {
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeNotInRoom, "participant has not joined a room")
	}

	pub := webrtc.NewPublisher(participantID, roomID, r.logger)
	pub.OnTrack(func(p *webrtc.Publisher, track *pionwebrtc.TrackRemote) {
		r.handlePublisherTrackCaptured(p, track)
	})
	pub.OnConnectionState(func(p *webrtc.Publisher, state pionwebrtc.PeerConnectionState) {
		if state == pionwebrtc.PeerConnectionStateFailed || state == pionwebrtc.PeerConnectionStateClosed {
			r.metrics.ConnectionFailed()
			// A publisher already taken out of the registry (by teardown or a
			// rejected duplicate) was closed on purpose; its owner stays.
			r.mu.RLock()
			current := r.publishers[p.ParticipantID]
			r.mu.RUnlock()
			if current != p {
				return
			}
			r.RemoveParticipant(p.ParticipantID)
		}
	})

	offer, err := pub.Create(r.factory)
	if err != nil {
		return pionwebrtc.SessionDescription{}, apperr.Wrap(err, apperr.CodeInvalidSDP, "failed to create publisher offer")
	}

	r.mu.Lock()
	// Re-check for a race with a concurrent CreatePublisher for the same
	// participant between the unlock above and this lock.
	if _, exists := r.publishers[participantID]; exists {
		r.mu.Unlock()
		pub.Close()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeAlreadyPublishing, "publisher already exists")
	}
	r.publishers[participantID] = pub
	r.mu.Unlock()

	r.metrics.PublisherCreated(roomID)
	return offer, nil
}

// handlePublisherTrackCaptured implements §4.5's track-captured fan-out:
// tell the publisher itself which track id it now owns, then notify every
// other room member that a new publisher is available. The spec fixes
// this as the single emission point for both audio_published and
// new_publisher (resolved Open Question, see DESIGN.md) — the server
// cannot name a track id before one has actually arrived.
func (r *Router) handlePublisherTrackCaptured(pub *webrtc.Publisher, track *pionwebrtc.TrackRemote) {
	r.mu.RLock()
	participant := r.participants[pub.ParticipantID]
	var others []domain.ParticipantID
	if room, ok := r.rooms[pub.RoomID]; ok {
		others = otherMembers(room, pub.ParticipantID)
	}
	r.mu.RUnlock()

	if participant == nil {
		return
	}
	r.notifier.Notify(pub.ParticipantID, AudioPublishedEvent{TrackID: track.ID()})
	for _, other := range others {
		r.notifier.Notify(other, NewPublisherEvent{SourceID: pub.ParticipantID, DisplayName: participant.DisplayName})
	}
}

// SetPublisherAnswer dispatches the client's answer to participantID's
// publisher.
func (r *Router) SetPublisherAnswer(participantID domain.ParticipantID, answer pionwebrtc.SessionDescription) *apperr.AppError {
	r.mu.RLock()
	pub, ok := r.publishers[participantID]
	r.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.CodeNotFound, "no publisher for participant")
	}
	if err := pub.AcceptAnswer(answer); err != nil {
		return apperr.Wrap(err, apperr.CodeInvalidSDP, "failed to apply publisher answer")
	}
	return nil
}

// AddPublisherICE dispatches a remote ICE candidate to participantID's
// publisher.
func (r *Router) AddPublisherICE(participantID domain.ParticipantID, candidate pionwebrtc.ICECandidateInit) *apperr.AppError {
	r.mu.RLock()
	pub, ok := r.publishers[participantID]
	r.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.CodeNotFound, "no publisher for participant")
	}
	if err := pub.AddRemoteICE(candidate); err != nil {
		return apperr.Wrap(err, apperr.CodeInvalidSDP, "failed to add ICE candidate")
	}
	return nil
}

// CreateConsumer allocates a consumer delivering sourceID's track to
// subscriberID (§4.3, §4.5).
func (r *Router) CreateConsumer(subscriberID, sourceID domain.ParticipantID) (pionwebrtc.SessionDescription, *apperr.AppError) {
	if subscriberID == sourceID {
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeSelfSubscription, "cannot subscribe to own publisher")
	}

	r.mu.Lock()
	if _, ok := r.participants[subscriberID]; !ok {
		r.mu.Unlock()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeNotFound, "subscriber not found")
	}
	sourcePub, ok := r.publishers[sourceID]
	if !ok {
		if _, participantExists := r.participants[sourceID]; !participantExists {
			r.mu.Unlock()
			return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeNotFound, "source participant not found")
		}
		r.mu.Unlock()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeTrackNotFound, "source has no publisher")
	}
	track := sourcePub.RemoteTrack()
	if track == nil {
		r.mu.Unlock()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeTrackNotFound, "source publisher has not captured a track yet")
	}
	key := domain.ConsumerKey{Subscriber: subscriberID, Source: sourceID}
	if _, exists := r.consumers[key]; exists {
		r.mu.Unlock()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeInternal, "consumer already exists")
	}
	roomID := sourcePub.RoomID
	r.mu.Unlock()

	consumer := webrtc.NewConsumer(subscriberID, sourceID, roomID, track, r.logger)
	consumer.OnConnectionState(func(c *webrtc.Consumer, state pionwebrtc.PeerConnectionState) {
		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			c.StartForwarding(r.metrics)
		case pionwebrtc.PeerConnectionStateFailed, pionwebrtc.PeerConnectionStateClosed:
			r.metrics.ConnectionFailed()
			r.removeConsumer(key)
		}
	})

	offer, err := consumer.Create(r.factory)
	if err != nil {
		return pionwebrtc.SessionDescription{}, apperr.Wrap(err, apperr.CodeInvalidSDP, "failed to create consumer offer")
	}

	r.mu.Lock()
	if _, exists := r.consumers[key]; exists {
		r.mu.Unlock()
		consumer.Close()
		return pionwebrtc.SessionDescription{}, apperr.New(apperr.CodeInternal, "consumer already exists")
	}
	r.consumers[key] = consumer
	r.mu.Unlock()

	r.metrics.ConsumerCreated(roomID)
	return offer, nil
}

func (r *Router) removeConsumer(key domain.ConsumerKey) {
	r.mu.Lock()
	c, ok := r.consumers[key]
	if ok {
		delete(r.consumers, key)
	}
	r.mu.Unlock()
	if ok {
		c.Close()
		r.metrics.ConsumerRemoved(c.RoomID)
	}
}

// SetConsumerAnswer dispatches the client's answer to the named consumer.
func (r *Router) SetConsumerAnswer(subscriberID, sourceID domain.ParticipantID, answer pionwebrtc.SessionDescription) *apperr.AppError {
	r.mu.RLock()
	c, ok := r.consumers[domain.ConsumerKey{Subscriber: subscriberID, Source: sourceID}]
	r.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.CodeNotFound, "no consumer for pair")
	}
	if err := c.AcceptAnswer(answer); err != nil {
		return apperr.Wrap(err, apperr.CodeInvalidSDP, "failed to apply consumer answer")
	}
	return nil
}

// AddConsumerICE dispatches a remote ICE candidate to the named consumer.
func (r *Router) AddConsumerICE(subscriberID, sourceID domain.ParticipantID, candidate pionwebrtc.ICECandidateInit) *apperr.AppError {
	r.mu.RLock()
	c, ok := r.consumers[domain.ConsumerKey{Subscriber: subscriberID, Source: sourceID}]
	r.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.CodeNotFound, "no consumer for pair")
	}
	if err := c.AddRemoteICE(candidate); err != nil {
		return apperr.Wrap(err, apperr.CodeInvalidSDP, "failed to add ICE candidate")
	}
	return nil
}

func otherMembers(room *domain.Room, except domain.ParticipantID) []domain.ParticipantID {
	others := make([]domain.ParticipantID, 0, len(room.Members))
	for m := range room.Members {
		if m != except {
			others = append(others, m)
		}
	}
	return others
}
