package service

import (
	"sync"

	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

// OutboundQueue is the last-resort per-recipient FIFO for undelivered
// messages, drained wholesale by the polling endpoint. It never fails.
type OutboundQueue struct {
	mu     sync.Mutex
	queues map[string][]models.OutboundMessage
}

// NewOutboundQueue creates an empty queue store
func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{
		queues: make(map[string][]models.OutboundMessage),
	}
}

// Append adds a message to the recipient's queue
func (q *OutboundQueue) Append(recipientID string, msg models.OutboundMessage) {
	q.mu.Lock()
	q.queues[recipientID] = append(q.queues[recipientID], msg)
	q.mu.Unlock()
}

// Drain returns and clears the recipient's queued messages. Read and
// clear happen under one lock so a concurrent Append is never dropped.
func (q *OutboundQueue) Drain(recipientID string) []models.OutboundMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.queues[recipientID]
	delete(q.queues, recipientID)
	return msgs
}

// Len reports the number of queued messages for the recipient
func (q *OutboundQueue) Len(recipientID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[recipientID])
}
