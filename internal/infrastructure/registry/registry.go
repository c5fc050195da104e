package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/utils"
)

// ConnectionRegistry assigns process-unique connection handles and tracks
// the sender for each live transport session. Handles combine a random
// per-process nonce with a monotonic sequence, so a handle is never reused
// while any stale reference to it could exist.
type ConnectionRegistry struct {
	nonce  string
	seq    atomic.Uint64
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	conns map[domain.ConnID]ports.Sender

	onClose func(domain.ConnID)
}

func NewConnectionRegistry(logger *zap.SugaredLogger) *ConnectionRegistry {
	return &ConnectionRegistry{
		nonce:  utils.ProcessNonce(),
		logger: logger,
		conns:  make(map[domain.ConnID]ports.Sender),
	}
}

func (r *ConnectionRegistry) OnClose(fn func(domain.ConnID)) {
	r.onClose = fn
}

func (r *ConnectionRegistry) Register(s ports.Sender) domain.ConnID {
	id := domain.ConnID(fmt.Sprintf("%s-%d", r.nonce, r.seq.Add(1)))

	r.mu.Lock()
	r.conns[id] = s
	r.mu.Unlock()

	r.logger.Debugw("connection registered", "conn_id", id)
	return id
}

// Deregister retires the handle and fires the close hook. The hook runs
// outside the registry lock, after the handle is already gone, so any
// in-flight relay to it drops instead of dangling. Exactly once per
// handle; repeat calls are no-ops.
func (r *ConnectionRegistry) Deregister(id domain.ConnID) {
	r.mu.Lock()
	_, existed := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if !existed {
		return
	}

	r.logger.Debugw("connection deregistered", "conn_id", id)
	if r.onClose != nil {
		r.onClose(id)
	}
}

func (r *ConnectionRegistry) Send(id domain.ConnID, msg any) error {
	r.mu.RLock()
	s, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		return domain.ErrConnNotFound
	}
	return s.Send(msg)
}

func (r *ConnectionRegistry) IsRegistered(id domain.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
