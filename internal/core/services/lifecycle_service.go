package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
)

// streamLockStripes bounds the lock table; operations on different streams
// that hash to different stripes run fully in parallel.
const streamLockStripes = 64

// lifecycleService is the room lifecycle manager: the only component that
// combines Room Store mutations with outbound notifications. Every
// mutation and its fan-out execute under the stream's striped lock, so all
// members observe membership events in the order the mutations were
// applied.
type lifecycleService struct {
	store    ports.RoomStore
	registry ports.ConnectionRegistry
	sinks    []ports.RoomEventSink
	logger   *zap.SugaredLogger

	locks [streamLockStripes]sync.Mutex
}

func NewLifecycleService(store ports.RoomStore, registry ports.ConnectionRegistry, logger *zap.SugaredLogger, sinks ...ports.RoomEventSink) ports.Lifecycle {
	return &lifecycleService{
		store:    store,
		registry: registry,
		sinks:    sinks,
		logger:   logger,
	}
}

func (s *lifecycleService) lock(id domain.StreamID) *sync.Mutex {
	return &s.locks[uint64(id)%streamLockStripes]
}

func (s *lifecycleService) StartBroadcast(ctx context.Context, conn domain.ConnID, streamID domain.StreamID, userID domain.UserID) error {
	mu := s.lock(streamID)
	mu.Lock()
	defer mu.Unlock()

	if existing, ok := s.store.Get(ctx, streamID); ok {
		if existing.BroadcasterConn == conn {
			// Client retry: re-acknowledge, leave the room untouched.
			s.send(conn, domain.NewBroadcastStarted(streamID))
			return nil
		}
		if s.registry.IsRegistered(existing.BroadcasterConn) {
			return domain.ErrAlreadyBroadcasting
		}
		// The previous broadcaster handle closed but its reconciliation
		// has not run yet. End the stale room first so two live
		// broadcasters never coexist.
		s.logger.Infow("force-reconciling stale room before start",
			"stream_id", streamID,
			"stale_conn", existing.BroadcasterConn,
		)
		s.endRoomLocked(ctx, existing)
	}

	snap, err := s.store.Create(ctx, streamID, userID, conn)
	if err != nil {
		return err
	}

	s.send(conn, domain.NewBroadcastStarted(streamID))
	s.emit(domain.RoomEvent{
		Type:              domain.RoomEventStreamStarted,
		StreamID:          streamID,
		BroadcasterUserID: snap.BroadcasterUserID,
		ViewerCount:       0,
		StartedAt:         snap.StartedAt,
	})

	s.logger.Infow("broadcast started",
		"stream_id", streamID,
		"broadcaster_user_id", userID,
		"conn_id", conn,
	)
	return nil
}

func (s *lifecycleService) JoinStream(ctx context.Context, conn domain.ConnID, streamID domain.StreamID, userID domain.UserID) error {
	mu := s.lock(streamID)
	mu.Lock()
	defer mu.Unlock()

	snap, added, err := s.store.AddViewer(ctx, streamID, conn, userID)
	if err != nil {
		return err
	}

	if !added {
		// Idempotent re-join: no membership change, no count broadcast,
		// but the retrying client still needs its reply to converge.
		s.send(conn, domain.NewBroadcasterReady(snap.BroadcasterConn, snap.ViewerCount))
		return nil
	}

	s.send(snap.BroadcasterConn, domain.NewViewerJoined(conn, snap.ViewerCount))
	s.send(conn, domain.NewBroadcasterReady(snap.BroadcasterConn, snap.ViewerCount))
	s.broadcastCount(snap)

	s.emit(domain.RoomEvent{
		Type:              domain.RoomEventViewerJoined,
		StreamID:          streamID,
		BroadcasterUserID: snap.BroadcasterUserID,
		ViewerHandle:      conn,
		ViewerCount:       snap.ViewerCount,
		StartedAt:         snap.StartedAt,
	})

	s.logger.Infow("viewer joined",
		"stream_id", streamID,
		"conn_id", conn,
		"viewer_count", snap.ViewerCount,
	)
	return nil
}

func (s *lifecycleService) LeaveStream(ctx context.Context, conn domain.ConnID, streamID domain.StreamID) error {
	mu := s.lock(streamID)
	mu.Lock()
	defer mu.Unlock()

	s.removeViewerLocked(ctx, conn, streamID)
	return nil
}

func (s *lifecycleService) EndBroadcast(ctx context.Context, conn domain.ConnID, streamID domain.StreamID) error {
	mu := s.lock(streamID)
	mu.Lock()
	defer mu.Unlock()

	snap, ok := s.store.Get(ctx, streamID)
	if !ok {
		return domain.ErrStreamNotFound
	}
	if snap.BroadcasterConn != conn {
		// Only the live broadcaster handle can end the room; a stale
		// handle from a reconnect race is ignored.
		s.logger.Debugw("ignoring end-broadcast from non-broadcaster",
			"stream_id", streamID,
			"conn_id", conn,
		)
		return nil
	}

	s.endRoomLocked(ctx, snap)
	return nil
}

// HandleDisconnect reconciles every room the closed handle touched. Cost
// is O(rooms touched) via the store's reverse index; a handle that never
// joined anything is a no-op with no notifications.
func (s *lifecycleService) HandleDisconnect(ctx context.Context, conn domain.ConnID) {
	m := s.store.Memberships(ctx, conn)
	if m.Empty() {
		return
	}

	for _, streamID := range m.Views {
		mu := s.lock(streamID)
		mu.Lock()
		s.removeViewerLocked(ctx, conn, streamID)
		mu.Unlock()
	}

	for _, streamID := range m.Broadcasts {
		mu := s.lock(streamID)
		mu.Lock()
		// Re-check under the lock: the room may already have been
		// reconciled or restarted under a new handle.
		snap, ok := s.store.Get(ctx, streamID)
		if ok && snap.BroadcasterConn == conn {
			s.endRoomLocked(ctx, snap)
		}
		mu.Unlock()
	}

	s.logger.Infow("disconnect reconciled",
		"conn_id", conn,
		"viewed_streams", len(m.Views),
		"broadcast_streams", len(m.Broadcasts),
	)
}

func (s *lifecycleService) ListActiveStreams(ctx context.Context) []domain.StreamStatus {
	return s.store.ListActive(ctx)
}

func (s *lifecycleService) ViewerCount(ctx context.Context, streamID domain.StreamID) (int, error) {
	count, ok := s.store.ViewerCount(ctx, streamID)
	if !ok {
		return 0, domain.ErrStreamNotFound
	}
	return count, nil
}

// removeViewerLocked handles both explicit leave and disconnect
// reconciliation; double-leave is a no-op with no notifications. Caller
// holds the stream lock.
func (s *lifecycleService) removeViewerLocked(ctx context.Context, conn domain.ConnID, streamID domain.StreamID) {
	snap, removed := s.store.RemoveViewer(ctx, streamID, conn)
	if !removed {
		return
	}

	s.send(snap.BroadcasterConn, domain.NewViewerLeft(conn, snap.ViewerCount))
	s.broadcastCount(snap)

	s.emit(domain.RoomEvent{
		Type:              domain.RoomEventViewerLeft,
		StreamID:          streamID,
		BroadcasterUserID: snap.BroadcasterUserID,
		ViewerHandle:      conn,
		ViewerCount:       snap.ViewerCount,
		StartedAt:         snap.StartedAt,
	})

	s.logger.Infow("viewer left",
		"stream_id", streamID,
		"conn_id", conn,
		"viewer_count", snap.ViewerCount,
	)
}

// endRoomLocked notifies every current member, then deletes the room.
// Deletion goes through the store's Delete so the reverse index retires
// atomically; once it returns, no further event can be delivered for this
// room. Caller holds the stream lock.
func (s *lifecycleService) endRoomLocked(ctx context.Context, snap *domain.RoomSnapshot) {
	ended := domain.NewBroadcastEnded(snap.StreamID)
	s.send(snap.BroadcasterConn, ended)
	for _, v := range snap.Viewers {
		s.send(v.Conn, ended)
	}

	s.store.Delete(ctx, snap.StreamID)

	s.emit(domain.RoomEvent{
		Type:              domain.RoomEventStreamEnded,
		StreamID:          snap.StreamID,
		BroadcasterUserID: snap.BroadcasterUserID,
		ViewerCount:       0,
		StartedAt:         snap.StartedAt,
	})

	s.logger.Infow("broadcast ended",
		"stream_id", snap.StreamID,
		"viewers_at_end", snap.ViewerCount,
	)
}

func (s *lifecycleService) broadcastCount(snap *domain.RoomSnapshot) {
	msg := domain.NewViewerCountUpdated(snap.ViewerCount)
	s.send(snap.BroadcasterConn, msg)
	for _, v := range snap.Viewers {
		s.send(v.Conn, msg)
	}
}

// send delivers best-effort: a member that disconnected mid-fan-out is an
// expected race and its reconciliation will follow.
func (s *lifecycleService) send(conn domain.ConnID, msg any) {
	if err := s.registry.Send(conn, msg); err != nil {
		s.logger.Debugw("dropping notification to closed connection",
			"conn_id", conn,
			"error", err,
		)
	}
}

func (s *lifecycleService) emit(ev domain.RoomEvent) {
	ev.At = time.Now()
	for _, sink := range s.sinks {
		sink.Publish(ev)
	}
}
