package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/repositories/memory"
)

// fakeRegistry records every message sent to every handle, in order.
type fakeRegistry struct {
	mu      sync.Mutex
	open    map[domain.ConnID]bool
	sent    map[domain.ConnID][]any
	onClose func(domain.ConnID)
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		open: make(map[domain.ConnID]bool),
		sent: make(map[domain.ConnID][]any),
	}
}

func (f *fakeRegistry) add(id domain.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open[id] = true
}

func (f *fakeRegistry) Register(ports.Sender) domain.ConnID { panic("not used in tests") }

func (f *fakeRegistry) Deregister(id domain.ConnID) {
	f.mu.Lock()
	existed := f.open[id]
	delete(f.open, id)
	f.mu.Unlock()
	if existed && f.onClose != nil {
		f.onClose(id)
	}
}

func (f *fakeRegistry) Send(id domain.ConnID, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[id] {
		return domain.ErrConnNotFound
	}
	f.sent[id] = append(f.sent[id], msg)
	return nil
}

func (f *fakeRegistry) IsRegistered(id domain.ConnID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[id]
}

func (f *fakeRegistry) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}

func (f *fakeRegistry) OnClose(fn func(domain.ConnID)) { f.onClose = fn }

func (f *fakeRegistry) messages(id domain.ConnID) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent[id]...)
}

func newTestLifecycle(sinks ...ports.RoomEventSink) (ports.Lifecycle, *fakeRegistry, ports.RoomStore) {
	reg := newFakeRegistry()
	store := memory.NewMemoryRoomStore()
	lc := NewLifecycleService(store, reg, zap.NewNop().Sugar(), sinks...)
	reg.OnClose(func(id domain.ConnID) { lc.HandleDisconnect(context.Background(), id) })
	return lc, reg, store
}

func TestStartBroadcast_AckAndIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator")) // retry

	msgs := reg.messages("b")
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.NewBroadcastStarted(42), msgs[0])
	assert.Equal(t, domain.NewBroadcastStarted(42), msgs[1])
}

func TestStartBroadcast_ConflictLeavesRoomUntouched(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b1")
	reg.add("b2")
	reg.add("v1")

	require.NoError(t, lc.StartBroadcast(ctx, "b1", 42, "creator-1"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, "user-a"))

	err := lc.StartBroadcast(ctx, "b2", 42, "creator-2")
	assert.ErrorIs(t, err, domain.ErrAlreadyBroadcasting)

	count, err := lc.ViewerCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	statuses := lc.ListActiveStreams(ctx)
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.UserID("creator-1"), statuses[0].BroadcasterUserID)
}

func TestStartBroadcast_StaleBroadcasterForceReconciled(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry()
	store := memory.NewMemoryRoomStore()
	lc := NewLifecycleService(store, reg, zap.NewNop().Sugar())
	// No OnClose hook: b1 closing will NOT reconcile, simulating the
	// window where the transport noticed the close but the notification
	// has not been processed yet.

	reg.add("b1")
	reg.add("v1")
	reg.add("b2")
	require.NoError(t, lc.StartBroadcast(ctx, "b1", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))

	// b1 silently drops; its room is now stale.
	reg.mu.Lock()
	delete(reg.open, "b1")
	reg.mu.Unlock()

	// A new start-broadcast must first end the stale room, then proceed.
	require.NoError(t, lc.StartBroadcast(ctx, "b2", 42, "creator"))

	vmsgs := reg.messages("v1")
	assert.Contains(t, vmsgs, domain.NewBroadcastEnded(42))

	statuses := lc.ListActiveStreams(ctx)
	require.Len(t, statuses, 1)
	count, err := lc.ViewerCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJoinStream_NotFound(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("v")

	err := lc.JoinStream(ctx, "v", 99, "user")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestJoinLeave_ViewerCountAccounting(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	for _, id := range []domain.ConnID{"b", "v1", "v2", "v3"} {
		reg.add(id)
	}

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))
	require.NoError(t, lc.JoinStream(ctx, "v2", 42, ""))
	require.NoError(t, lc.JoinStream(ctx, "v3", 42, ""))

	count, err := lc.ViewerCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, lc.LeaveStream(ctx, "v2", 42))
	// Double leave is a no-op.
	require.NoError(t, lc.LeaveStream(ctx, "v2", 42))

	count, err = lc.ViewerCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The broadcaster observed each mutation's count in order.
	var counts []int
	for _, m := range reg.messages("b") {
		if vcu, ok := m.(domain.ViewerCountUpdated); ok {
			counts = append(counts, vcu.ViewerCount)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 2}, counts)
}

func TestJoin_NotificationFanOut(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b")
	reg.add("v1")
	reg.add("v2")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, "user-1"))

	bmsgs := reg.messages("b")
	assert.Contains(t, bmsgs, domain.NewViewerJoined("v1", 1))
	assert.Contains(t, bmsgs, domain.NewViewerCountUpdated(1))

	v1msgs := reg.messages("v1")
	assert.Contains(t, v1msgs, domain.NewBroadcasterReady("b", 1))
	assert.Contains(t, v1msgs, domain.NewViewerCountUpdated(1))

	require.NoError(t, lc.JoinStream(ctx, "v2", 42, "user-2"))

	assert.Contains(t, reg.messages("v1"), domain.NewViewerCountUpdated(2))
	assert.Contains(t, reg.messages("v2"), domain.NewViewerCountUpdated(2))
	assert.Contains(t, reg.messages("b"), domain.NewViewerCountUpdated(2))
}

func TestJoin_IdempotentRejoinSkipsCountBroadcast(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b")
	reg.add("v1")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, "")) // retry

	// The retry re-sends broadcaster-ready but no second viewer-joined.
	var joined, ready int
	for _, m := range reg.messages("b") {
		if _, ok := m.(domain.ViewerJoined); ok {
			joined++
		}
	}
	for _, m := range reg.messages("v1") {
		if _, ok := m.(domain.BroadcasterReady); ok {
			ready++
		}
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, 2, ready)
}

func TestEndBroadcast_DeletesRoomAndNotifies(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b")
	reg.add("v1")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))
	require.NoError(t, lc.EndBroadcast(ctx, "b", 42))

	assert.Contains(t, reg.messages("b"), domain.NewBroadcastEnded(42))
	assert.Contains(t, reg.messages("v1"), domain.NewBroadcastEnded(42))

	// Joining again reports the stream gone until a new start-broadcast.
	err := lc.JoinStream(ctx, "v1", 42, "")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))
}

func TestEndBroadcast_IgnoredFromNonBroadcaster(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b")
	reg.add("v1")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))

	// A viewer cannot end the room.
	require.NoError(t, lc.EndBroadcast(ctx, "v1", 42))
	assert.Len(t, lc.ListActiveStreams(ctx), 1)

	err := lc.EndBroadcast(ctx, "b", 99)
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestDisconnect_UnknownHandleIsNoOp(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b")
	reg.add("stranger")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))

	reg.Deregister("stranger")

	assert.Len(t, lc.ListActiveStreams(ctx), 1)
	assert.Empty(t, reg.messages("b")[1:]) // nothing beyond the start ack
}

func TestScenario_BroadcasterDisconnectCascade(t *testing.T) {
	ctx := context.Background()
	lc, reg, store := newTestLifecycle()
	for _, id := range []domain.ConnID{"B", "V1", "V2"} {
		reg.add(id)
	}

	require.NoError(t, lc.StartBroadcast(ctx, "B", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "V1", 42, "alice"))

	assert.Contains(t, reg.messages("B"), domain.NewViewerJoined("V1", 1))
	assert.Contains(t, reg.messages("V1"), domain.NewBroadcasterReady("B", 1))
	assert.Contains(t, reg.messages("B"), domain.NewViewerCountUpdated(1))
	assert.Contains(t, reg.messages("V1"), domain.NewViewerCountUpdated(1))

	require.NoError(t, lc.JoinStream(ctx, "V2", 42, "bob"))
	for _, id := range []domain.ConnID{"B", "V1", "V2"} {
		assert.Contains(t, reg.messages(id), domain.NewViewerCountUpdated(2))
	}

	// B drops abruptly; the registry close hook reconciles.
	reg.Deregister("B")

	assert.Contains(t, reg.messages("V1"), domain.NewBroadcastEnded(42))
	assert.Contains(t, reg.messages("V2"), domain.NewBroadcastEnded(42))

	_, ok := store.Get(ctx, 42)
	assert.False(t, ok)
}

func TestDisconnect_BroadcasterStripeStaysUsable(t *testing.T) {
	ctx := context.Background()
	lc, reg, store := newTestLifecycle()
	reg.add("b1")
	reg.add("b2")

	require.NoError(t, lc.StartBroadcast(ctx, "b1", 7, "creator"))
	reg.Deregister("b1")

	_, ok := store.Get(ctx, 7)
	require.False(t, ok)

	// The same stream id maps to the same lock stripe; a fresh broadcast
	// must acquire it cleanly after the disconnect reconciliation.
	require.NoError(t, lc.StartBroadcast(ctx, "b2", 7, "creator"))
	assert.Contains(t, reg.messages("b2"), domain.NewBroadcastStarted(7))
}

func TestViewerDisconnect_Reconciles(t *testing.T) {
	ctx := context.Background()
	lc, reg, _ := newTestLifecycle()
	reg.add("b")
	reg.add("v1")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))

	reg.Deregister("v1")

	assert.Contains(t, reg.messages("b"), domain.NewViewerLeft("v1", 0))
	count, err := lc.ViewerCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (s *recordingSink) Publish(ev domain.RoomEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func TestRoomEvents_EmittedInMutationOrder(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	lc, reg, _ := newTestLifecycle(sink)
	reg.add("b")
	reg.add("v1")

	require.NoError(t, lc.StartBroadcast(ctx, "b", 42, "creator"))
	require.NoError(t, lc.JoinStream(ctx, "v1", 42, ""))
	require.NoError(t, lc.LeaveStream(ctx, "v1", 42))
	require.NoError(t, lc.EndBroadcast(ctx, "b", 42))

	var types []domain.RoomEventType
	for _, ev := range sink.events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.RoomEventType{
		domain.RoomEventStreamStarted,
		domain.RoomEventViewerJoined,
		domain.RoomEventViewerLeft,
		domain.RoomEventStreamEnded,
	}, types)
	assert.Equal(t, 1, sink.events[1].ViewerCount)
	assert.Equal(t, 0, sink.events[2].ViewerCount)
}
