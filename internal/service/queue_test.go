package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

func TestOutboundQueueAppendAndDrain(t *testing.T) {
	q := NewOutboundQueue()

	q.Append("zhangsan", models.OutboundMessage{Text: "one"})
	q.Append("zhangsan", models.OutboundMessage{Text: "two"})
	q.Append("lisi", models.OutboundMessage{Text: "other"})

	assert.Equal(t, 2, q.Len("zhangsan"))

	msgs := q.Drain("zhangsan")
	assert.Equal(t, []models.OutboundMessage{{Text: "one"}, {Text: "two"}}, msgs)

	// Drain clears: a second drain is empty, FIFO order preserved above.
	assert.Empty(t, q.Drain("zhangsan"))
	assert.Equal(t, 1, q.Len("lisi"))
}

func TestOutboundQueueDrainUnknownRecipient(t *testing.T) {
	q := NewOutboundQueue()
	assert.Empty(t, q.Drain("nobody"))
}

func TestOutboundQueueConcurrentAppendDrain(t *testing.T) {
	q := NewOutboundQueue()

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				q.Append("zhangsan", models.OutboundMessage{Text: "m"})
			}
		}()
	}

	drained := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	for {
		drained += len(q.Drain("zhangsan"))
		select {
		case <-done:
			drained += len(q.Drain("zhangsan"))
			assert.Equal(t, writers*perWriter, drained)
			return
		default:
		}
	}
}
