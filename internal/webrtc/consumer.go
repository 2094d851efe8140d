package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"voxhub/internal/domain"
)

// Consumer wraps the one downstream peer connection that delivers a
// single source publisher's track to one subscriber. Exactly one
// consumer exists per (subscriber, source) pair in steady state; the
// router is responsible for enforcing that uniqueness.
type Consumer struct {
	SubscriberID domain.ParticipantID
	SourceID     domain.ParticipantID
	RoomID       domain.RoomID

	logger *zap.SugaredLogger

	pc         *webrtc.PeerConnection
	localTrack *webrtc.TrackLocalStaticRTP
	sourceTrack *webrtc.TrackRemote

	onState OnConsumerStateFunc

	mu            sync.Mutex
	answerApplied bool
	pendingICE    []webrtc.ICECandidateInit

	cancelForward context.CancelFunc
	forwardDone   chan struct{}
}

// OnConsumerStateFunc is invoked on every connection state transition.
type OnConsumerStateFunc func(c *Consumer, state webrtc.PeerConnectionState)

// NewConsumer allocates a Consumer shell for the given (subscriber,
// source) pair, forwarding sourceTrack once connected.
func NewConsumer(subscriber, source domain.ParticipantID, room domain.RoomID, sourceTrack *webrtc.TrackRemote, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		SubscriberID: subscriber,
		SourceID:     source,
		RoomID:       room,
		sourceTrack:  sourceTrack,
		logger:       logger,
	}
}

// OnConnectionState registers the handler invoked on state transitions.
func (c *Consumer) OnConnectionState(fn OnConsumerStateFunc) { c.onState = fn }

// Create allocates the peer connection, builds a local track whose codec
// parameters mirror the source, adds it as a sendonly transceiver,
// generates the offer, and sets it as the local description.
func (c *Consumer) Create(factory *Factory) (webrtc.SessionDescription, error) {
	pc, err := factory.NewConnection()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create consumer peer connection: %w", err)
	}
	c.pc = pc

	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		c.sourceTrack.Codec().RTPCodecCapability,
		c.sourceTrack.ID(),
		c.sourceTrack.StreamID(),
	)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create local forwarding track: %w", err)
	}
	c.localTrack = localTrack

	if _, err := pc.AddTransceiverFromTrack(localTrack, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	}); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("add sendonly transceiver: %w", err)
	}

	pc.OnConnectionStateChange(c.handleConnectionState)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

// AcceptAnswer mirrors Publisher.AcceptAnswer.
func (c *Consumer) AcceptAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.pc == nil {
		c.mu.Unlock()
		return fmt.Errorf("consumer %s<-%s: accept answer before create", c.SubscriberID, c.SourceID)
	}
	if c.answerApplied {
		c.mu.Unlock()
		return fmt.Errorf("consumer %s<-%s: answer already applied", c.SubscriberID, c.SourceID)
	}
	c.answerApplied = true
	pending := c.pendingICE
	c.pendingICE = nil
	pc := c.pc
	c.mu.Unlock()

	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	for _, cand := range pending {
		if err := pc.AddICECandidate(cand); err != nil {
			c.logger.Warnw("failed to apply buffered ICE candidate", "subscriber", c.SubscriberID, "source", c.SourceID, "error", err)
		}
	}
	return nil
}

// AddRemoteICE mirrors Publisher.AddRemoteICE.
func (c *Consumer) AddRemoteICE(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if !c.answerApplied {
		c.pendingICE = append(c.pendingICE, candidate)
		c.mu.Unlock()
		return nil
	}
	pc := c.pc
	c.mu.Unlock()
	return pc.AddICECandidate(candidate)
}

// StartForwarding spawns the forwarding task (§4.4), forwarding RTP from
// the source track to the local track until the source ends, the
// consumer is closed, or the forwarding loop is cancelled. Safe to call
// more than once; only the first call starts a task.
func (c *Consumer) StartForwarding(metrics ForwardMetrics) {
	c.mu.Lock()
	if c.cancelForward != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelForward = cancel
	c.forwardDone = make(chan struct{})
	done := c.forwardDone
	c.mu.Unlock()

	go func() {
		defer close(done)
		ForwardTrack(ctx, c.logger, metrics, c.RoomID, c.sourceTrack, c.localTrack)
	}()
}

// PeerConnection exposes the underlying connection.
func (c *Consumer) PeerConnection() *webrtc.PeerConnection { return c.pc }

// Close cancels forwarding (if running) and closes the peer connection.
// It waits for the forwarding task to observe cancellation before
// returning, per §5's "cancel synchronously ... await outside the lock"
// discipline.
func (c *Consumer) Close() error {
	c.mu.Lock()
	cancel := c.cancelForward
	done := c.forwardDone
	pc := c.pc
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if pc == nil {
		return nil
	}
	return pc.Close()
}

func (c *Consumer) handleConnectionState(state webrtc.PeerConnectionState) {
	c.logger.Infow("consumer connection state changed", "subscriber", c.SubscriberID, "source", c.SourceID, "state", state)
	if c.onState != nil {
		c.onState(c, state)
	}
}
