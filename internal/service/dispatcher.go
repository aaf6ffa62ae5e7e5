package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toboto/moltbot-wecom-channel/internal/metrics"
	"github.com/toboto/moltbot-wecom-channel/internal/models"
	"github.com/toboto/moltbot-wecom-channel/internal/privacy"
)

// Dispatcher routes outbound messages through the ordered delivery
// tiers, falling back to the in-memory queue when every transport is
// unavailable or fails. Send never returns an error: a message always
// lands somewhere.
type Dispatcher struct {
	tiers   []DeliveryTier
	queue   *OutboundQueue
	pending *PendingSyncStore
	tracker *RecipientTracker
	logger  *logrus.Logger
}

// NewDispatcher creates a dispatcher with the given tier chain
func NewDispatcher(tiers []DeliveryTier, queue *OutboundQueue, pending *PendingSyncStore, tracker *RecipientTracker, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		tiers:   tiers,
		queue:   queue,
		pending: pending,
		tracker: tracker,
		logger:  logger,
	}
}

// Send delivers the message to the recipient through the first tier
// that succeeds. The broadcast pseudo-recipient is resolved to the user
// pinned in the delivery context, or to the last active recipient.
func (d *Dispatcher) Send(ctx context.Context, recipientID string, msg models.OutboundMessage, cfg models.DeliveryConfig) {
	recipientID = d.resolveRecipient(ctx, recipientID)
	if recipientID == "" {
		d.logger.Warn("Dropping broadcast message: no recipient has interacted yet")
		metrics.IncrementCounter("dispatch_dropped_total", nil, "Messages dropped with no resolvable recipient")
		return
	}

	start := time.Now()
	for _, tier := range d.tiers {
		ok, err := tier.Deliver(ctx, recipientID, msg, cfg)
		if ok {
			d.logger.WithFields(logrus.Fields{
				"tier":      tier.Name(),
				"recipient": privacy.MaskRecipientID(recipientID),
			}).Info("Message delivered")
			metrics.IncrementCounter("dispatch_delivered_total", map[string]string{"tier": tier.Name()}, "Messages delivered per tier")
			metrics.RecordTimer("dispatch_duration", time.Since(start), map[string]string{"tier": tier.Name()}, "Outbound delivery latency")
			return
		}
		if err != nil {
			d.logger.WithFields(logrus.Fields{
				"tier":      tier.Name(),
				"recipient": privacy.MaskRecipientID(recipientID),
			}).WithError(err).Warn("Delivery tier failed, trying next")
			metrics.IncrementCounter("dispatch_tier_failures_total", map[string]string{"tier": tier.Name()}, "Per-tier delivery failures")
		}
	}

	d.queue.Append(recipientID, msg)
	d.logger.WithFields(logrus.Fields{
		"recipient": privacy.MaskRecipientID(recipientID),
		"queued":    d.queue.Len(recipientID),
	}).Info("No delivery tier available, message queued")
	metrics.IncrementCounter("dispatch_queued_total", nil, "Messages queued for polling")
}

// RegisterSync installs a held synchronous request for the recipient
func (d *Dispatcher) RegisterSync(recipientID string) *PendingRequest {
	return d.pending.Register(recipientID)
}

// SyncTimeout is how long a held synchronous request can stay open
func (d *Dispatcher) SyncTimeout() time.Duration {
	return d.pending.Timeout()
}

// DrainQueue returns and clears the recipient's queued messages
func (d *Dispatcher) DrainQueue(recipientID string) []models.OutboundMessage {
	return d.queue.Drain(recipientID)
}

// RecordRecipient notes a recipient interaction for broadcast resolution
func (d *Dispatcher) RecordRecipient(recipientID string) {
	d.tracker.Record(recipientID)
}

func (d *Dispatcher) resolveRecipient(ctx context.Context, recipientID string) string {
	if recipientID != "" && recipientID != BroadcastRecipient {
		return recipientID
	}
	if dc, ok := DeliveryContextFrom(ctx); ok && dc.RecipientHint != "" {
		return dc.RecipientHint
	}
	return d.tracker.Last()
}
