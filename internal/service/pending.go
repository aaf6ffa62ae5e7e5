package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/toboto/moltbot-wecom-channel/internal/models"
)

// SyncResult is the HTTP outcome a held synchronous request resolves to
type SyncResult struct {
	Status int
	Body   []byte
}

// PendingRequest is one held synchronous HTTP request. The handler that
// registered it blocks on Wait until the dispatcher fulfills it, a newer
// registration supersedes it, or the timeout fires.
type PendingRequest struct {
	recipientID string
	result      chan SyncResult
	once        sync.Once
}

// Wait blocks until the request is resolved
func (p *PendingRequest) Wait() SyncResult {
	return <-p.result
}

func (p *PendingRequest) resolve(res SyncResult) {
	p.once.Do(func() {
		p.result <- res
	})
}

// PendingSyncStore holds at most one live synchronous request per
// recipient id. Registering a second supersedes the first with a
// conflict status so no handler leaks.
type PendingSyncStore struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
	timeout time.Duration
}

// NewPendingSyncStore creates a store with the given resolution timeout
func NewPendingSyncStore(timeout time.Duration) *PendingSyncStore {
	return &PendingSyncStore{
		pending: make(map[string]*PendingRequest),
		timeout: timeout,
	}
}

// Register installs a new pending request for the recipient, superseding
// and resolving any existing one with 409. A timer resolves the request
// with 202 "accepted" if nothing arrives before the deadline; the timer
// is a no-op when the entry it captured is no longer the current one.
func (s *PendingSyncStore) Register(recipientID string) *PendingRequest {
	pr := &PendingRequest{
		recipientID: recipientID,
		result:      make(chan SyncResult, 1),
	}

	s.mu.Lock()
	old := s.pending[recipientID]
	s.pending[recipientID] = pr
	s.mu.Unlock()

	if old != nil {
		old.resolve(SyncResult{
			Status: http.StatusConflict,
			Body:   []byte(`{"error":"New synchronous request superseded this one"}`),
		})
	}

	time.AfterFunc(s.timeout, func() {
		s.mu.Lock()
		current := s.pending[recipientID] == pr
		if current {
			delete(s.pending, recipientID)
		}
		s.mu.Unlock()

		if current {
			pr.resolve(SyncResult{
				Status: http.StatusAccepted,
				Body:   []byte(`{"status":"accepted","message":"Processing continued, poll for results."}`),
			})
		}
	})

	return pr
}

// Timeout is the resolution deadline applied to registered requests
func (s *PendingSyncStore) Timeout() time.Duration {
	return s.timeout
}

// Fulfill resolves the recipient's pending request with the message
// payload. It reports whether a live request was present.
func (s *PendingSyncStore) Fulfill(recipientID string, msg models.OutboundMessage) bool {
	s.mu.Lock()
	pr := s.pending[recipientID]
	delete(s.pending, recipientID)
	s.mu.Unlock()

	if pr == nil {
		return false
	}

	body, err := json.Marshal(msg)
	if err != nil {
		body = []byte(`{}`)
	}
	pr.resolve(SyncResult{Status: http.StatusOK, Body: body})
	return true
}

// Has reports whether a live request exists for the recipient
func (s *PendingSyncStore) Has(recipientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[recipientID]
	return ok
}
