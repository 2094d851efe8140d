package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"voxhub/internal/domain"
)

// OnTrackFunc is invoked once the publisher's first remote track arrives.
type OnTrackFunc func(pub *Publisher, track *webrtc.TrackRemote)

// OnStateFunc is invoked on every peer-connection state transition.
type OnStateFunc func(pub *Publisher, state webrtc.PeerConnectionState)

// Publisher wraps the one upstream peer connection a participant uses to
// send audio into a room. Exactly one remote track is expected; the
// offer is generated once and renegotiation is not supported — a failed
// publisher is torn down and recreated on the next signaling cycle.
type Publisher struct {
	ParticipantID domain.ParticipantID
	RoomID        domain.RoomID

	logger *zap.SugaredLogger

	pc *webrtc.PeerConnection

	onTrack OnTrackFunc
	onState OnStateFunc

	mu             sync.Mutex
	remoteTrack    *webrtc.TrackRemote
	answerApplied  bool
	pendingICE     []webrtc.ICECandidateInit
}

// NewPublisher allocates a Publisher shell. Callbacks must be registered
// with OnTrack/OnConnectionState before Create is called, per §4.2.
func NewPublisher(participantID domain.ParticipantID, roomID domain.RoomID, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		ParticipantID: participantID,
		RoomID:        roomID,
		logger:        logger,
	}
}

// OnTrack registers the handler invoked when the first remote track
// arrives.
func (p *Publisher) OnTrack(fn OnTrackFunc) { p.onTrack = fn }

// OnConnectionState registers the handler invoked on every connection
// state transition.
func (p *Publisher) OnConnectionState(fn OnStateFunc) { p.onState = fn }

// Create allocates the peer connection, adds a recvonly audio
// transceiver, generates the SDP offer, and sets it as the local
// description.
func (p *Publisher) Create(factory *Factory) (webrtc.SessionDescription, error) {
	pc, err := factory.NewConnection()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create publisher peer connection: %w", err)
	}
	p.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("add recvonly transceiver: %w", err)
	}

	pc.OnTrack(p.handleTrack)
	pc.OnConnectionStateChange(p.handleConnectionState)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

// AcceptAnswer sets the remote description from the client's answer and
// drains any ICE candidates that arrived before it, in arrival order.
// Calling before Create, or more than once per offer, is an error.
func (p *Publisher) AcceptAnswer(answer webrtc.SessionDescription) error {
	p.mu.Lock()
	if p.pc == nil {
		p.mu.Unlock()
		return fmt.Errorf("publisher %s: accept answer before create", p.ParticipantID)
	}
	if p.answerApplied {
		p.mu.Unlock()
		return fmt.Errorf("publisher %s: answer already applied", p.ParticipantID)
	}
	p.answerApplied = true
	pending := p.pendingICE
	p.pendingICE = nil
	pc := p.pc
	p.mu.Unlock()

	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			p.logger.Warnw("failed to apply buffered ICE candidate", "participant", p.ParticipantID, "error", err)
		}
	}
	return nil
}

// AddRemoteICE applies the candidate immediately if the remote
// description has already been set, otherwise buffers it.
func (p *Publisher) AddRemoteICE(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.answerApplied {
		p.pendingICE = append(p.pendingICE, candidate)
		p.mu.Unlock()
		return nil
	}
	pc := p.pc
	p.mu.Unlock()
	return pc.AddICECandidate(candidate)
}

// RemoteTrack returns the captured track, or nil if on-track has not
// fired yet.
func (p *Publisher) RemoteTrack() *webrtc.TrackRemote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteTrack
}

// PeerConnection exposes the underlying connection for state inspection
// and close.
func (p *Publisher) PeerConnection() *webrtc.PeerConnection { return p.pc }

// Close tears down the peer connection.
func (p *Publisher) Close() error {
	if p.pc == nil {
		return nil
	}
	return p.pc.Close()
}

func (p *Publisher) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	p.mu.Lock()
	if p.remoteTrack != nil {
		p.mu.Unlock()
		p.logger.Warnw("publisher received extra track, ignoring", "participant", p.ParticipantID, "track_id", track.ID())
		return
	}
	p.remoteTrack = track
	p.mu.Unlock()

	p.logger.Infow("publisher track captured", "participant", p.ParticipantID, "room", p.RoomID, "codec", track.Codec().MimeType)

	go drainRTCP(receiver, p.logger, string(p.ParticipantID))

	if p.onTrack != nil {
		p.onTrack(p, track)
	}
}

func (p *Publisher) handleConnectionState(state webrtc.PeerConnectionState) {
	p.logger.Infow("publisher connection state changed", "participant", p.ParticipantID, "state", state)
	if p.onState != nil {
		p.onState(p, state)
	}
}

// drainRTCP reads RTCP reports from a receiver purely to keep the
// connection's feedback loop alive; the packets are discarded and nothing
// is logged. The SFU does not act on bitrate/quality feedback (congestion
// control is a spec.md non-goal).
func drainRTCP(receiver *webrtc.RTPReceiver, logger *zap.SugaredLogger, participant string) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range packets {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
				// Audio-only SFU: PLI is not meaningful, ignore.
				continue
			}
		}
	}
}
