package ports

import (
	"context"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
)

// RoomStore is the authoritative in-memory mapping from stream identifier
// to room. The store guards its rooms map and the conn->room reverse index
// with a single lock so the two can never disagree; per-stream operation
// serialization is the lifecycle manager's job.
type RoomStore interface {
	// Create opens a room. It fails with ErrAlreadyBroadcasting when the
	// room exists under a different broadcaster handle; calling again with
	// the same handle is idempotent and returns the existing room.
	Create(ctx context.Context, streamID domain.StreamID, userID domain.UserID, conn domain.ConnID) (*domain.RoomSnapshot, error)

	// Get returns a snapshot of the room, if it exists. Absence means
	// "no active stream", not an error.
	Get(ctx context.Context, streamID domain.StreamID) (*domain.RoomSnapshot, bool)

	// AddViewer adds a viewer entry. added is false when the handle was
	// already a member (idempotent re-add). Fails with ErrStreamNotFound
	// when the room does not exist.
	AddViewer(ctx context.Context, streamID domain.StreamID, conn domain.ConnID, userID domain.UserID) (snap *domain.RoomSnapshot, added bool, err error)

	// RemoveViewer removes a viewer entry; removed is false when the
	// handle was not a member (double-leave is a no-op).
	RemoveViewer(ctx context.Context, streamID domain.StreamID, conn domain.ConnID) (snap *domain.RoomSnapshot, removed bool)

	// Delete removes the room entirely. It is the single point through
	// which "stream ended" is expressed.
	Delete(ctx context.Context, streamID domain.StreamID) (*domain.RoomSnapshot, bool)

	// Memberships resolves every room the handle participates in via the
	// reverse index; cost is proportional to the rooms touched.
	Memberships(ctx context.Context, conn domain.ConnID) domain.Membership

	ListActive(ctx context.Context) []domain.StreamStatus
	ViewerCount(ctx context.Context, streamID domain.StreamID) (int, bool)
}

// PresenceStore mirrors active-room state into shared storage so
// collaborators can read it without calling the coordinator. Best effort;
// failures never affect room processing.
type PresenceStore interface {
	SetRoom(ctx context.Context, status domain.StreamStatus) error
	RemoveRoom(ctx context.Context, streamID domain.StreamID) error
	Ping(ctx context.Context) error
}
