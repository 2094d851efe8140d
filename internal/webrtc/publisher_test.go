package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voxhub/internal/domain"
)

func testFactory(t *testing.T) *Factory {
	t.Helper()
	factory, err := NewFactory(Config{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	require.NoError(t, err)
	return factory
}

func TestPublisher_Create_ProducesRecvonlyOffer(t *testing.T) {
	factory := testFactory(t)
	pub := NewPublisher("alice", "room-1", zap.NewNop().Sugar())
	defer pub.Close()

	offer, err := pub.Create(factory)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.NotEmpty(t, offer.SDP)
	assert.Contains(t, offer.SDP, "a=recvonly")
	assert.Nil(t, pub.RemoteTrack())
}

func TestPublisher_AcceptAnswer_BeforeCreateFails(t *testing.T) {
	pub := NewPublisher("alice", "room-1", zap.NewNop().Sugar())
	err := pub.AcceptAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	assert.Error(t, err)
}

func TestPublisher_AddRemoteICE_BuffersBeforeAnswer(t *testing.T) {
	factory := testFactory(t)
	pub := NewPublisher("alice", "room-1", zap.NewNop().Sugar())
	defer pub.Close()

	_, err := pub.Create(factory)
	require.NoError(t, err)

	err = pub.AddRemoteICE(webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 1 127.0.0.1 9 typ host"})
	assert.NoError(t, err)
	assert.Len(t, pub.pendingICE, 1)
}

func TestPublisher_OnTrackCallback_RegisteredBeforeCreate(t *testing.T) {
	factory := testFactory(t)
	pub := NewPublisher(domain.ParticipantID("alice"), domain.RoomID("room-1"), zap.NewNop().Sugar())
	defer pub.Close()

	called := false
	pub.OnTrack(func(p *Publisher, track *webrtc.TrackRemote) {
		called = true
	})

	_, err := pub.Create(factory)
	require.NoError(t, err)
	// No remote track arrives without a real peer — callback only fires on
	// an actual inbound track, which this unit test does not simulate.
	assert.False(t, called)
}
