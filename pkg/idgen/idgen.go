// Package idgen generates the opaque, globally unique identifiers the
// domain model requires: participant (user_id) and room ids.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// NewParticipantID returns a fresh globally-unique participant id.
func NewParticipantID() string {
	return prefixed("user", uuid.NewString())
}

// NewRoomID returns a fresh globally-unique room id.
func NewRoomID() string {
	return prefixed("room", uuid.NewString())
}

func prefixed(kind, id string) string {
	return fmt.Sprintf("%s_%s", kind, id)
}
