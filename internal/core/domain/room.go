package domain

import (
	"time"
)

// StreamID is assigned by the platform API when the stream record is
// persisted; the coordinator never mints one itself.
type StreamID int64

// ConnID is an opaque, process-unique handle for one open transport
// session. Handles are never reused within a process.
type ConnID string

type UserID string

type Viewer struct {
	Conn   ConnID
	UserID UserID
}

// RoomSnapshot is an immutable copy of a room's state, safe to hand out
// across goroutines. Viewers is a copied slice, not a view into the store.
type RoomSnapshot struct {
	StreamID          StreamID
	BroadcasterUserID UserID
	BroadcasterConn   ConnID
	Viewers           []Viewer
	ViewerCount       int
	StartedAt         time.Time
}

// StreamStatus is the read-only list entry exposed to collaborators.
type StreamStatus struct {
	StreamID          StreamID  `json:"stream_id"`
	BroadcasterUserID UserID    `json:"broadcaster_user_id"`
	ViewerCount       int       `json:"viewer_count"`
	StartedAt         time.Time `json:"started_at"`
}

// Membership lists every room a connection handle currently participates
// in, split by role. Used for O(rooms touched) disconnect reconciliation.
type Membership struct {
	Broadcasts []StreamID
	Views      []StreamID
}

func (m Membership) Empty() bool {
	return len(m.Broadcasts) == 0 && len(m.Views) == 0
}
