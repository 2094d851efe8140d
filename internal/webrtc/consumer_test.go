package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsumer_AcceptAnswer_BeforeCreateFails(t *testing.T) {
	c := NewConsumer("bob", "alice", "room-1", nil, zap.NewNop().Sugar())
	err := c.AcceptAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	assert.Error(t, err)
}

func TestConsumer_AddRemoteICE_BuffersBeforeAnswer(t *testing.T) {
	c := NewConsumer("bob", "alice", "room-1", nil, zap.NewNop().Sugar())
	err := c.AddRemoteICE(webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 1 127.0.0.1 9 typ host"})
	require.NoError(t, err)
	assert.Len(t, c.pendingICE, 1)
}

func TestConsumer_Close_NoopWithoutCreate(t *testing.T) {
	c := NewConsumer("bob", "alice", "room-1", nil, zap.NewNop().Sugar())
	assert.NoError(t, c.Close())
}
