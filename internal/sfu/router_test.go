package sfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voxhub/internal/domain"
	"voxhub/internal/metrics"
	"voxhub/internal/webrtc"
)

type recordingNotifier struct {
	events map[domain.ParticipantID][]Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[domain.ParticipantID][]Event)}
}

func (n *recordingNotifier) Notify(to domain.ParticipantID, event Event) {
	n.events[to] = append(n.events[to], event)
}

// testCollector is shared by every test: the collector registers with the
// default Prometheus registry, which accepts each metric name only once
// per process.
var testCollector = metrics.NewCollector()

func newTestRouter(t *testing.T) (*Router, *recordingNotifier) {
	t.Helper()
	notifier := newRecordingNotifier()
	r := New(nil, testCollector, notifier, zap.NewNop().Sugar())
	return r, notifier
}

func TestJoinRoom_UnknownParticipant(t *testing.T) {
	r, _ := newTestRouter(t)
	room := r.CreateRoom()
	_, _, err := r.JoinRoom("nobody", room)
	require.NotNil(t, err)
	assert.Equal(t, "NOT_REGISTERED", string(err.Code))
}

func TestJoinRoom_UnknownRoom(t *testing.T) {
	r, _ := newTestRouter(t)
	id := r.RegisterParticipant("alice")
	_, _, err := r.JoinRoom(id, "no-such-room")
	require.NotNil(t, err)
	assert.Equal(t, "ROOM_NOT_FOUND", string(err.Code))
}

func TestJoinRoom_NotifiesExistingMembers(t *testing.T) {
	r, notifier := newTestRouter(t)
	room := r.CreateRoom()

	alice := r.RegisterParticipant("alice")
	_, _, err := r.JoinRoom(alice, room)
	require.Nil(t, err)

	bob := r.RegisterParticipant("bob")
	_, _, err = r.JoinRoom(bob, room)
	require.Nil(t, err)

	require.Len(t, notifier.events[alice], 1)
	joined, ok := notifier.events[alice][0].(UserJoinedEvent)
	require.True(t, ok)
	assert.Equal(t, bob, joined.ParticipantID)

	// bob should not have been notified about himself joining.
	assert.Empty(t, notifier.events[bob])
}

func TestCreateConsumer_RejectsSelfSubscription(t *testing.T) {
	r, _ := newTestRouter(t)
	room := r.CreateRoom()
	alice := r.RegisterParticipant("alice")
	_, _, err := r.JoinRoom(alice, room)
	require.Nil(t, err)

	_, cErr := r.CreateConsumer(alice, alice)
	require.NotNil(t, cErr)
	assert.Equal(t, "SELF_SUBSCRIPTION", string(cErr.Code))
}

func TestCreateConsumer_NoPublisherYieldsTrackNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	room := r.CreateRoom()
	alice := r.RegisterParticipant("alice")
	bob := r.RegisterParticipant("bob")
	_, _, err := r.JoinRoom(alice, room)
	require.Nil(t, err)
	_, _, err = r.JoinRoom(bob, room)
	require.Nil(t, err)

	_, cErr := r.CreateConsumer(alice, bob)
	require.NotNil(t, cErr)
	assert.Equal(t, "TRACK_NOT_FOUND", string(cErr.Code))
}

func TestCreateConsumer_UnknownSourceYieldsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	room := r.CreateRoom()
	alice := r.RegisterParticipant("alice")
	_, _, err := r.JoinRoom(alice, room)
	require.Nil(t, err)

	_, cErr := r.CreateConsumer(alice, "ghost")
	require.NotNil(t, cErr)
	assert.Equal(t, "NOT_FOUND", string(cErr.Code))
}

func TestRemoveParticipant_ClearsRoomAndNotifiesRemainingMembers(t *testing.T) {
	r, notifier := newTestRouter(t)
	room := r.CreateRoom()
	alice := r.RegisterParticipant("alice")
	bob := r.RegisterParticipant("bob")
	_, _, err := r.JoinRoom(alice, room)
	require.Nil(t, err)
	_, _, err = r.JoinRoom(bob, room)
	require.Nil(t, err)

	require.Nil(t, r.RemoveParticipant(alice))

	require.Len(t, notifier.events[bob], 1)
	left, ok := notifier.events[bob][len(notifier.events[bob])-1].(UserLeftEvent)
	require.True(t, ok)
	assert.Equal(t, alice, left.ParticipantID)

	// alice is fully gone: operating on her again fails with NOT_REGISTERED.
	err = r.RemoveParticipant(alice)
	require.NotNil(t, err)
	assert.Equal(t, "NOT_REGISTERED", string(err.Code))
}

func TestCreatePublisher_RequiresRoomMembership(t *testing.T) {
	r, _ := newTestRouter(t)
	alice := r.RegisterParticipant("alice")
	_, err := r.CreatePublisher(alice)
	require.NotNil(t, err)
	assert.Equal(t, "NOT_IN_ROOM", string(err.Code))
}

func TestCreatePublisher_RejectsDuplicateWithAlreadyPublishing(t *testing.T) {
	notifier := newRecordingNotifier()
	factory, err := webrtc.NewFactory(webrtc.Config{})
	require.NoError(t, err)
	r := New(factory, testCollector, notifier, zap.NewNop().Sugar())

	room := r.CreateRoom()
	alice := r.RegisterParticipant("alice")
	_, _, joinErr := r.JoinRoom(alice, room)
	require.Nil(t, joinErr)

	firstOffer, createErr := r.CreatePublisher(alice)
	require.Nil(t, createErr)
	require.NotEmpty(t, firstOffer.SDP)

	r.mu.RLock()
	original := r.publishers[alice]
	r.mu.RUnlock()
	require.NotNil(t, original)

	secondOffer, dupErr := r.CreatePublisher(alice)
	require.NotNil(t, dupErr)
	assert.Equal(t, "ALREADY_PUBLISHING", string(dupErr.Code))
	assert.Empty(t, secondOffer.SDP)

	r.mu.RLock()
	stillPublisher := r.publishers[alice]
	r.mu.RUnlock()
	assert.Same(t, original, stillPublisher, "first publisher must survive a rejected duplicate create_publisher")
}
