package idgen

import (
	"strings"
	"testing"
)

func TestNewParticipantID(t *testing.T) {
	a, b := NewParticipantID(), NewParticipantID()
	if a == b {
		t.Fatal("expected unique ids")
	}
	if !strings.HasPrefix(a, "user_") {
		t.Fatalf("expected user_ prefix, got %s", a)
	}
}

func TestNewRoomID(t *testing.T) {
	a, b := NewRoomID(), NewRoomID()
	if a == b {
		t.Fatal("expected unique ids")
	}
	if !strings.HasPrefix(a, "room_") {
		t.Fatalf("expected room_ prefix, got %s", a)
	}
}
