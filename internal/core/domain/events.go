package domain

import "time"

// RoomEventType identifies a room-membership change emitted to
// collaborators (metrics, presence mirror, pub/sub feed).
type RoomEventType string

const (
	RoomEventStreamStarted RoomEventType = "stream.started"
	RoomEventStreamEnded   RoomEventType = "stream.ended"
	RoomEventViewerJoined  RoomEventType = "viewer.joined"
	RoomEventViewerLeft    RoomEventType = "viewer.left"
)

// RoomEvent describes one membership mutation of one room. Events for a
// single stream are emitted in mutation order.
type RoomEvent struct {
	Type              RoomEventType `json:"type"`
	StreamID          StreamID      `json:"stream_id"`
	BroadcasterUserID UserID        `json:"broadcaster_user_id,omitempty"`
	ViewerHandle      ConnID        `json:"viewer_handle,omitempty"`
	ViewerCount       int           `json:"viewer_count"`
	StartedAt         time.Time     `json:"started_at,omitempty"`
	At                time.Time     `json:"at"`
}
