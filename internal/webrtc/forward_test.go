package webrtc

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransientWriteError(t *testing.T) {
	assert.True(t, isTransientWriteError(errors.New("temporary hiccup")))
	assert.False(t, isTransientWriteError(io.ErrClosedPipe))
}

func TestWriteWithBackoff_SucceedsOnUnboundTrack(t *testing.T) {
	sink, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", "stream")
	require.NoError(t, err)

	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 1000, SSRC: 42}, Payload: []byte{0x01, 0x02}}
	err = writeWithBackoff(context.Background(), sink, pkt)
	assert.NoError(t, err)
}
