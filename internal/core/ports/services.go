package ports

import (
	"context"
	"encoding/json"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
)

// Sender delivers outbound messages to one transport connection in send
// order. Send must not block; a sender whose queue overflows reports
// ErrSendQueueFull and is expected to close itself.
type Sender interface {
	Send(msg any) error
	Close() error
}

// ConnectionRegistry assigns connection handles and tracks every live
// transport session. It performs no business logic.
type ConnectionRegistry interface {
	// Register assigns a fresh handle. Handles are monotonic per process
	// and never reused while any stale reference could exist.
	Register(s Sender) domain.ConnID

	// Deregister retires the handle and fires the close hook exactly once.
	// Safe to call twice; the second call is a no-op.
	Deregister(id domain.ConnID)

	// Send enqueues msg on the handle's sender; ErrConnNotFound when the
	// handle is not registered.
	Send(id domain.ConnID, msg any) error

	IsRegistered(id domain.ConnID) bool
	Count() int

	// OnClose installs the hook invoked after a handle is retired. Must be
	// set before the registry starts accepting connections.
	OnClose(fn func(id domain.ConnID))
}

// Lifecycle orchestrates room state machine transitions. It is the only
// component allowed to combine Room Store mutations with outbound
// notifications; the two happen atomically per stream.
type Lifecycle interface {
	StartBroadcast(ctx context.Context, conn domain.ConnID, streamID domain.StreamID, userID domain.UserID) error
	JoinStream(ctx context.Context, conn domain.ConnID, streamID domain.StreamID, userID domain.UserID) error
	LeaveStream(ctx context.Context, conn domain.ConnID, streamID domain.StreamID) error
	EndBroadcast(ctx context.Context, conn domain.ConnID, streamID domain.StreamID) error

	// HandleDisconnect reconciles every room the handle participates in.
	// Called by the registry close hook.
	HandleDisconnect(ctx context.Context, conn domain.ConnID)

	// Read-only snapshots, safe from any goroutine.
	ListActiveStreams(ctx context.Context) []domain.StreamStatus
	ViewerCount(ctx context.Context, streamID domain.StreamID) (int, error)
}

// SignalRelay forwards opaque handshake payloads between two named
// handles. An unreachable target is an expected race, not an error; the
// message is silently dropped.
type SignalRelay interface {
	Relay(ctx context.Context, kind string, from, to domain.ConnID, payload json.RawMessage)
}

// RoomEventSink receives room-membership events. Publish must be cheap
// and must never block: it runs inside the per-stream critical section.
type RoomEventSink interface {
	Publish(ev domain.RoomEvent)
}

// ConnMetrics counts transport connections.
type ConnMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
}

// SignalMetrics counts relayed handshake messages.
type SignalMetrics interface {
	RelayForwarded(kind string)
	RelayDropped(kind string)
}
