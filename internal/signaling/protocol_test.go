package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_RoundTrips(t *testing.T) {
	env, err := encode(TypeRegistered, RegisteredPayload{UserID: "user_123"})
	require.NoError(t, err)
	assert.Equal(t, TypeRegistered, env.Type)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeRegistered, decoded.Type)

	var payload RegisteredPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "user_123", payload.UserID)
}

func TestEnvelope_UnmarshalsInboundJoinRoom(t *testing.T) {
	raw := []byte(`{"type":"join_room","payload":{"room_id":"room_abc"}}`)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, TypeJoinRoom, env.Type)

	var payload JoinRoomPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "room_abc", payload.RoomID)
}
