package distributed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/circuitbreaker"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/retry"
)

const publishQueueSize = 256

// RoomEventPublisher is the RoomEventSink that feeds Redis. Publish only
// enqueues, so it is safe to call inside the per-stream critical section;
// a single worker drains the queue to the presence mirror and the event
// bus. Redis trouble is absorbed here: retries with backoff, a breaker to
// stop hammering a dead server, and dropped events with a warning when
// the queue overflows.
type RoomEventPublisher struct {
	presence ports.PresenceStore
	bus      *EventBus
	logger   *zap.SugaredLogger

	queue   chan domain.RoomEvent
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRoomEventPublisher(presence ports.PresenceStore, bus *EventBus, logger *zap.SugaredLogger) *RoomEventPublisher {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 3
	retryCfg.InitialDelay = 50 * time.Millisecond

	p := &RoomEventPublisher{
		presence: presence,
		bus:      bus,
		logger:   logger,
		queue:    make(chan domain.RoomEvent, publishQueueSize),
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:    retryCfg,
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx)
	return p
}

// Publish enqueues and returns immediately. Room processing never waits
// on Redis.
func (p *RoomEventPublisher) Publish(ev domain.RoomEvent) {
	select {
	case p.queue <- ev:
	default:
		p.logger.Warnw("event queue full, dropping room event",
			"type", ev.Type,
			"stream_id", ev.StreamID,
		)
	}
}

// Stop drains nothing; queued events still unprocessed when Stop is
// called are discarded with the connection.
func (p *RoomEventPublisher) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *RoomEventPublisher) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			p.process(ctx, ev)
		}
	}
}

func (p *RoomEventPublisher) process(ctx context.Context, ev domain.RoomEvent) {
	err := p.breaker.Execute(ctx, func() error {
		return retry.Retry(ctx, p.retry, func() error {
			return p.deliver(ctx, ev)
		})
	})
	if err != nil {
		p.logger.Warnw("failed to deliver room event",
			"type", ev.Type,
			"stream_id", ev.StreamID,
			"error", err,
		)
	}
}

func (p *RoomEventPublisher) deliver(ctx context.Context, ev domain.RoomEvent) error {
	if p.presence != nil {
		var err error
		switch ev.Type {
		case domain.RoomEventStreamEnded:
			err = p.presence.RemoveRoom(ctx, ev.StreamID)
		default:
			err = p.presence.SetRoom(ctx, domain.StreamStatus{
				StreamID:          ev.StreamID,
				BroadcasterUserID: ev.BroadcasterUserID,
				ViewerCount:       ev.ViewerCount,
				StartedAt:         ev.StartedAt,
			})
		}
		if err != nil {
			return err
		}
	}

	if p.bus != nil {
		return p.bus.Publish(ctx, ev)
	}
	return nil
}
