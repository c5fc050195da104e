package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
)

type room struct {
	streamID          domain.StreamID
	broadcasterUserID domain.UserID
	broadcasterConn   domain.ConnID
	viewers           map[domain.ConnID]domain.Viewer
	startedAt         time.Time
}

// membership is the reverse-index entry for one connection handle.
type membership struct {
	broadcasts map[domain.StreamID]struct{}
	views      map[domain.StreamID]struct{}
}

func (m *membership) empty() bool {
	return len(m.broadcasts) == 0 && len(m.views) == 0
}

// MemoryRoomStore keeps rooms and the conn->room reverse index under one
// mutex, so membership and index mutate atomically. Per-stream operation
// ordering is enforced by the lifecycle manager, not here.
type MemoryRoomStore struct {
	mu     sync.RWMutex
	rooms  map[domain.StreamID]*room
	byConn map[domain.ConnID]*membership
}

func NewMemoryRoomStore() ports.RoomStore {
	return &MemoryRoomStore{
		rooms:  make(map[domain.StreamID]*room),
		byConn: make(map[domain.ConnID]*membership),
	}
}

func (s *MemoryRoomStore) Create(ctx context.Context, streamID domain.StreamID, userID domain.UserID, conn domain.ConnID) (*domain.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rooms[streamID]; ok {
		if existing.broadcasterConn == conn {
			// Client retry with the same handle.
			return snapshot(existing), nil
		}
		return nil, domain.ErrAlreadyBroadcasting
	}

	r := &room{
		streamID:          streamID,
		broadcasterUserID: userID,
		broadcasterConn:   conn,
		viewers:           make(map[domain.ConnID]domain.Viewer),
		startedAt:         time.Now(),
	}
	s.rooms[streamID] = r
	s.indexFor(conn).broadcasts[streamID] = struct{}{}

	return snapshot(r), nil
}

func (s *MemoryRoomStore) Get(ctx context.Context, streamID domain.StreamID) (*domain.RoomSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[streamID]
	if !ok {
		return nil, false
	}
	return snapshot(r), true
}

func (s *MemoryRoomStore) AddViewer(ctx context.Context, streamID domain.StreamID, conn domain.ConnID, userID domain.UserID) (*domain.RoomSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[streamID]
	if !ok {
		return nil, false, domain.ErrStreamNotFound
	}

	if _, exists := r.viewers[conn]; exists {
		return snapshot(r), false, nil
	}

	r.viewers[conn] = domain.Viewer{Conn: conn, UserID: userID}
	s.indexFor(conn).views[streamID] = struct{}{}

	return snapshot(r), true, nil
}

func (s *MemoryRoomStore) RemoveViewer(ctx context.Context, streamID domain.StreamID, conn domain.ConnID) (*domain.RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[streamID]
	if !ok {
		return nil, false
	}

	if _, exists := r.viewers[conn]; !exists {
		return snapshot(r), false
	}

	delete(r.viewers, conn)
	s.unindexView(conn, streamID)

	return snapshot(r), true
}

func (s *MemoryRoomStore) Delete(ctx context.Context, streamID domain.StreamID) (*domain.RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[streamID]
	if !ok {
		return nil, false
	}

	snap := snapshot(r)
	delete(s.rooms, streamID)

	s.unindexBroadcast(r.broadcasterConn, streamID)
	for conn := range r.viewers {
		s.unindexView(conn, streamID)
	}

	return snap, true
}

func (s *MemoryRoomStore) Memberships(ctx context.Context, conn domain.ConnID) domain.Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m domain.Membership
	entry, ok := s.byConn[conn]
	if !ok {
		return m
	}

	for id := range entry.broadcasts {
		m.Broadcasts = append(m.Broadcasts, id)
	}
	for id := range entry.views {
		m.Views = append(m.Views, id)
	}
	return m
}

func (s *MemoryRoomStore) ListActive(ctx context.Context) []domain.StreamStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]domain.StreamStatus, 0, len(s.rooms))
	for _, r := range s.rooms {
		statuses = append(statuses, domain.StreamStatus{
			StreamID:          r.streamID,
			BroadcasterUserID: r.broadcasterUserID,
			ViewerCount:       len(r.viewers),
			StartedAt:         r.startedAt,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StreamID < statuses[j].StreamID
	})
	return statuses
}

func (s *MemoryRoomStore) ViewerCount(ctx context.Context, streamID domain.StreamID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[streamID]
	if !ok {
		return 0, false
	}
	return len(r.viewers), true
}

// indexFor returns the reverse-index entry for conn, creating it on first
// use. Caller must hold s.mu.
func (s *MemoryRoomStore) indexFor(conn domain.ConnID) *membership {
	entry, ok := s.byConn[conn]
	if !ok {
		entry = &membership{
			broadcasts: make(map[domain.StreamID]struct{}),
			views:      make(map[domain.StreamID]struct{}),
		}
		s.byConn[conn] = entry
	}
	return entry
}

func (s *MemoryRoomStore) unindexView(conn domain.ConnID, streamID domain.StreamID) {
	entry, ok := s.byConn[conn]
	if !ok {
		return
	}
	delete(entry.views, streamID)
	if entry.empty() {
		delete(s.byConn, conn)
	}
}

func (s *MemoryRoomStore) unindexBroadcast(conn domain.ConnID, streamID domain.StreamID) {
	entry, ok := s.byConn[conn]
	if !ok {
		return
	}
	delete(entry.broadcasts, streamID)
	if entry.empty() {
		delete(s.byConn, conn)
	}
}

func snapshot(r *room) *domain.RoomSnapshot {
	viewers := make([]domain.Viewer, 0, len(r.viewers))
	for _, v := range r.viewers {
		viewers = append(viewers, v)
	}
	return &domain.RoomSnapshot{
		StreamID:          r.streamID,
		BroadcasterUserID: r.broadcasterUserID,
		BroadcasterConn:   r.broadcasterConn,
		Viewers:           viewers,
		ViewerCount:       len(viewers),
		StartedAt:         r.startedAt,
	}
}
