// Package signaling is the WebSocket adaptor (§6 of the spec): it owns
// participant registration and room membership at the message boundary,
// translates wire messages into router operations, and translates router
// events back into wire messages.
package signaling

import "encoding/json"

// Envelope is the outer shape of every message on the wire: a type tag
// plus a type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound payloads (client -> server).

type RegisterPayload struct {
	Username string `json:"username"`
}

type CreateRoomPayload struct{}

type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type LeaveRoomPayload struct{}

type CreatePublisherPayload struct{}

type PublishAudioPayload struct {
	SDP string `json:"sdp"`
}

type CreateConsumerPayload struct {
	PublisherUserID string `json:"publisher_user_id"`
}

type ConsumerAnswerPayload struct {
	PublisherUserID string `json:"publisher_user_id"`
	SDP             string `json:"sdp"`
}

type PublisherICECandidatePayload struct {
	Candidate ICECandidate `json:"candidate"`
}

type ConsumerICECandidatePayload struct {
	PublisherUserID string       `json:"publisher_user_id"`
	Candidate       ICECandidate `json:"candidate"`
}

// ICECandidate mirrors the subset of webrtc.ICECandidateInit carried on
// the wire.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdp_mline_index,omitempty"`
	UsernameFragment *string `json:"username_fragment,omitempty"`
}

// Outbound payloads (server -> client).

type RegisteredPayload struct {
	UserID string `json:"user_id"`
}

type RoomCreatedPayload struct {
	RoomID string `json:"room_id"`
}

// RoomParticipant identifies one room member on the wire: their id plus
// the display name they registered with.
type RoomParticipant struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type RoomJoinedPayload struct {
	RoomID             string            `json:"room_id"`
	Participants       []RoomParticipant `json:"participants"`
	ExistingPublishers []string          `json:"existing_publishers"`
}

type UserJoinedPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type UserLeftPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type PublisherCreatedPayload struct {
	SDP string `json:"sdp"`
}

type AudioPublishedPayload struct {
	TrackID string `json:"track_id"`
}

type NewPublisherPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type ConsumerCreatedPayload struct {
	PublisherUserID string `json:"publisher_user_id"`
	SDP             string `json:"sdp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongPayload struct{}

// Message type tags (§6.1).
const (
	TypeRegister              = "register"
	TypeCreateRoom            = "create_room"
	TypeJoinRoom              = "join_room"
	TypeLeaveRoom             = "leave_room"
	TypeCreatePublisher       = "create_publisher"
	TypePublishAudio          = "publish_audio"
	TypeCreateConsumer        = "create_consumer"
	TypeConsumerAnswer        = "consumer_answer"
	TypePublisherICECandidate = "publisher_ice_candidate"
	TypeConsumerICECandidate  = "consumer_ice_candidate"
	TypePing                  = "ping"

	TypeRegistered       = "registered"
	TypeRoomCreated      = "room_created"
	TypeRoomJoined       = "room_joined"
	TypeUserJoined       = "user_joined"
	TypeUserLeft         = "user_left"
	TypePublisherCreated = "publisher_created"
	TypeAudioPublished   = "audio_published"
	TypeNewPublisher     = "new_publisher"
	TypeConsumerCreated  = "consumer_created"
	TypeError            = "error"
	TypePong             = "pong"
)

// encode wraps a payload into an Envelope ready for json.Marshal.
func encode(msgType string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}
