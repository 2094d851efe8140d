package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory_RegistersOpusAndBuildsConnections(t *testing.T) {
	factory, err := NewFactory(Config{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	require.NoError(t, err)
	require.NotNil(t, factory)

	pc, err := factory.NewConnection()
	require.NoError(t, err)
	defer pc.Close()
	assert.NotNil(t, pc)
}

func TestNewFactory_DefaultsICEServersWhenUnconfigured(t *testing.T) {
	factory, err := NewFactory(Config{})
	require.NoError(t, err)

	pc, err := factory.NewConnection()
	require.NoError(t, err)
	defer pc.Close()
	assert.NotNil(t, pc)
}

func TestNewFactory_AppliesPortRange(t *testing.T) {
	factory, err := NewFactory(Config{PortRangeMin: 30000, PortRangeMax: 30010})
	require.NoError(t, err)
	assert.NotNil(t, factory)
}
