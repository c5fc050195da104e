package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
)

// relayService forwards opaque handshake payloads between two connection
// handles. It never inspects payloads and keeps no state: ordering rides
// on the per-connection send queues.
type relayService struct {
	registry ports.ConnectionRegistry
	metrics  ports.SignalMetrics
	logger   *zap.SugaredLogger
}

func NewRelayService(registry ports.ConnectionRegistry, metrics ports.SignalMetrics, logger *zap.SugaredLogger) ports.SignalRelay {
	return &relayService{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Relay forwards one offer/answer/candidate to the target handle, tagged
// with the sender. An unregistered target means the peer disconnected
// while the message was in flight: the message is dropped silently, with
// no retry and no queueing.
func (r *relayService) Relay(ctx context.Context, kind string, from, to domain.ConnID, payload json.RawMessage) {
	msg := domain.SignalForward{Type: kind, From: from, Payload: payload}

	if err := r.registry.Send(to, msg); err != nil {
		r.logger.Debugw("relay target unreachable, dropping",
			"kind", kind,
			"from", from,
			"to", to,
		)
		if r.metrics != nil {
			r.metrics.RelayDropped(kind)
		}
		return
	}

	if r.metrics != nil {
		r.metrics.RelayForwarded(kind)
	}
}
