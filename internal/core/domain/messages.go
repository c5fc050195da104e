package domain

import "encoding/json"

// Inbound message kinds.
const (
	MsgStartBroadcast = "start-broadcast"
	MsgJoinStream     = "join-stream"
	MsgLeaveStream    = "leave-stream"
	MsgEndBroadcast   = "end-broadcast"
	MsgOffer          = "webrtc-offer"
	MsgAnswer         = "webrtc-answer"
	MsgICECandidate   = "webrtc-ice-candidate"
)

// Outbound message kinds. The three webrtc-* kinds are both inbound and
// outbound: they are forwarded verbatim, retagged with the sender handle.
const (
	MsgConnected          = "connected"
	MsgBroadcastStarted   = "broadcast-started"
	MsgStreamError        = "stream-error"
	MsgViewerJoined       = "viewer-joined"
	MsgBroadcasterReady   = "broadcaster-ready"
	MsgViewerCountUpdated = "viewer-count-updated"
	MsgViewerLeft         = "viewer-left"
	MsgBroadcastEnded     = "broadcast-ended"
)

type BroadcastStarted struct {
	Type     string   `json:"type"`
	StreamID StreamID `json:"stream_id"`
}

type StreamError struct {
	Type     string   `json:"type"`
	StreamID StreamID `json:"stream_id,omitempty"`
	Message  string   `json:"message"`
}

type ViewerJoined struct {
	Type         string `json:"type"`
	ViewerHandle ConnID `json:"viewer_handle"`
	ViewerCount  int    `json:"viewer_count"`
}

type BroadcasterReady struct {
	Type              string `json:"type"`
	BroadcasterHandle ConnID `json:"broadcaster_handle"`
	ViewerCount       int    `json:"viewer_count"`
}

type ViewerCountUpdated struct {
	Type        string `json:"type"`
	ViewerCount int    `json:"viewer_count"`
}

type ViewerLeft struct {
	Type         string `json:"type"`
	ViewerHandle ConnID `json:"viewer_handle"`
	ViewerCount  int    `json:"viewer_count"`
}

type BroadcastEnded struct {
	Type     string   `json:"type"`
	StreamID StreamID `json:"stream_id"`
}

// SignalForward carries a relayed handshake message. Payload is opaque to
// the coordinator; only the two endpoints interpret it.
type SignalForward struct {
	Type    string          `json:"type"`
	From    ConnID          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

func NewBroadcastStarted(id StreamID) BroadcastStarted {
	return BroadcastStarted{Type: MsgBroadcastStarted, StreamID: id}
}

func NewStreamError(id StreamID, message string) StreamError {
	return StreamError{Type: MsgStreamError, StreamID: id, Message: message}
}

func NewViewerJoined(viewer ConnID, count int) ViewerJoined {
	return ViewerJoined{Type: MsgViewerJoined, ViewerHandle: viewer, ViewerCount: count}
}

func NewBroadcasterReady(broadcaster ConnID, count int) BroadcasterReady {
	return BroadcasterReady{Type: MsgBroadcasterReady, BroadcasterHandle: broadcaster, ViewerCount: count}
}

func NewViewerCountUpdated(count int) ViewerCountUpdated {
	return ViewerCountUpdated{Type: MsgViewerCountUpdated, ViewerCount: count}
}

func NewViewerLeft(viewer ConnID, count int) ViewerLeft {
	return ViewerLeft{Type: MsgViewerLeft, ViewerHandle: viewer, ViewerCount: count}
}

func NewBroadcastEnded(id StreamID) BroadcastEnded {
	return BroadcastEnded{Type: MsgBroadcastEnded, StreamID: id}
}

// IsSignalKind reports whether kind is one of the relayed handshake kinds.
func IsSignalKind(kind string) bool {
	switch kind {
	case MsgOffer, MsgAnswer, MsgICECandidate:
		return true
	}
	return false
}
