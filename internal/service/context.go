package service

import (
	"context"
	"sync"
)

// BroadcastRecipient is the pseudo-recipient the conversational backend
// may name as a target. It is never sent to directly; Send resolves it
// to a concrete recipient first.
const BroadcastRecipient = "@all"

type contextKey string

const deliveryContextKey contextKey = "delivery_context"

// DeliveryContext is threaded from the inbound handler through every
// outbound call so a broadcast target can be pinned back to the user
// whose message started the exchange.
type DeliveryContext struct {
	RecipientHint string
	AccountID     string
}

// WithDeliveryContext attaches a DeliveryContext to the context
func WithDeliveryContext(ctx context.Context, dc DeliveryContext) context.Context {
	return context.WithValue(ctx, deliveryContextKey, dc)
}

// DeliveryContextFrom extracts the DeliveryContext, if any
func DeliveryContextFrom(ctx context.Context) (DeliveryContext, bool) {
	dc, ok := ctx.Value(deliveryContextKey).(DeliveryContext)
	return dc, ok
}

// RecipientTracker remembers the recipient that most recently interacted,
// used as the broadcast fallback when no delivery context is available.
type RecipientTracker struct {
	mu   sync.Mutex
	last string
}

// NewRecipientTracker creates an empty tracker
func NewRecipientTracker() *RecipientTracker {
	return &RecipientTracker{}
}

// Record notes a concrete recipient; the broadcast pseudo-recipient is ignored
func (t *RecipientTracker) Record(recipientID string) {
	if recipientID == "" || recipientID == BroadcastRecipient {
		return
	}
	t.mu.Lock()
	t.last = recipientID
	t.mu.Unlock()
}

// Last returns the most recently recorded recipient, or empty
func (t *RecipientTracker) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
