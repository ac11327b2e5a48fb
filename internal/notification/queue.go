// Package notification holds per-client mailboxes of download progress events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/media"
)

// Config configures mailbox limits.
type Config struct {
	// MaxDepth caps each mailbox; the oldest event is dropped on overflow.
	// Zero means unbounded.
	MaxDepth int
}

type mailbox struct {
	events     []media.StatusInfo
	signal     chan struct{}
	waiters    int
	lastActive time.Time
	dropped    int
}

// Queue owns every client's mailbox. Create one per process and share it.
type Queue struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
	maxDepth  int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewQueue creates an empty registry.
func NewQueue(cfg Config, logger zerolog.Logger) *Queue {
	return &Queue{
		mailboxes: make(map[string]*mailbox),
		maxDepth:  cfg.MaxDepth,
		now:       time.Now,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// mailboxLocked returns the client's mailbox, creating it. Caller holds q.mu.
func (q *Queue) mailboxLocked(clientID string) *mailbox {
	mb, ok := q.mailboxes[clientID]
	if !ok {
		mb = &mailbox{
			signal:     make(chan struct{}),
			lastActive: q.now(),
		}
		q.mailboxes[clientID] = mb
	}
	return mb
}

// Put appends event to the client's mailbox. It never blocks.
func (q *Queue) Put(clientID string, event media.StatusInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mb := q.mailboxLocked(clientID)
	mb.events = append(mb.events, event)
	mb.lastActive = q.now()

	if q.maxDepth > 0 && len(mb.events) > q.maxDepth {
		overflow := len(mb.events) - q.maxDepth
		mb.events = append([]media.StatusInfo(nil), mb.events[overflow:]...)
		mb.dropped += overflow
		q.logger.Debug().
			Str("clientId", clientID).
			Int("dropped", overflow).
			Msg("Mailbox full, dropped oldest events")
	}

	close(mb.signal)
	mb.signal = make(chan struct{})
}

// Get removes and returns the oldest event for the client, waiting until one
// arrives or ctx is done.
func (q *Queue) Get(ctx context.Context, clientID string) (media.StatusInfo, error) {
	for {
		q.mu.Lock()
		mb := q.mailboxLocked(clientID)
		if event, ok := q.popLocked(mb); ok {
			q.mu.Unlock()
			return event, nil
		}
		mb.waiters++
		signal := mb.signal
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			q.mu.Lock()
			mb.waiters--
			q.mu.Unlock()
			return media.StatusInfo{}, ctx.Err()
		case <-signal:
			q.mu.Lock()
			mb.waiters--
			q.mu.Unlock()
		}
	}
}

// TryGet removes and returns the oldest event without waiting. The boolean is
// false when the mailbox is currently empty.
func (q *Queue) TryGet(clientID string) (media.StatusInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mb, ok := q.mailboxes[clientID]
	if !ok {
		return media.StatusInfo{}, false
	}
	return q.popLocked(mb)
}

func (q *Queue) popLocked(mb *mailbox) (media.StatusInfo, bool) {
	if len(mb.events) == 0 {
		return media.StatusInfo{}, false
	}
	event := mb.events[0]
	mb.events[0] = media.StatusInfo{}
	mb.events = mb.events[1:]
	mb.lastActive = q.now()
	return event, true
}

// Subscribe streams the client's events on the returned channel until ctx is
// done, then closes it. Only one subscriber per client is expected.
func (q *Queue) Subscribe(ctx context.Context, clientID string) <-chan media.StatusInfo {
	out := make(chan media.StatusInfo)
	go func() {
		defer close(out)
		for {
			event, err := q.Get(ctx, clientID)
			if err != nil {
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				// put it back so the next consumer sees it first
				q.requeueFront(clientID, event)
				return
			}
		}
	}()
	return out
}

func (q *Queue) requeueFront(clientID string, event media.StatusInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mb := q.mailboxLocked(clientID)
	mb.events = append([]media.StatusInfo{event}, mb.events...)
}

// Len returns the number of pending events for the client.
func (q *Queue) Len(clientID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if mb, ok := q.mailboxes[clientID]; ok {
		return len(mb.events)
	}
	return 0
}

// Clients returns the number of mailboxes currently held.
func (q *Queue) Clients() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mailboxes)
}

// Prune evicts mailboxes that are empty, have no waiting consumer and have
// been idle for at least idle. It returns the number evicted.
func (q *Queue) Prune(idle time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-idle)
	evicted := 0
	for clientID, mb := range q.mailboxes {
		if len(mb.events) == 0 && mb.waiters == 0 && !mb.lastActive.After(cutoff) {
			delete(q.mailboxes, clientID)
			evicted++
		}
	}
	return evicted
}

// Stats summarizes the registry.
type Stats struct {
	Clients int `json:"clients"`
	Pending int `json:"pending"`
	Waiting int `json:"waiting"`
	Dropped int `json:"dropped"`
}

// Stats returns a snapshot of registry counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Clients: len(q.mailboxes)}
	for _, mb := range q.mailboxes {
		s.Pending += len(mb.events)
		s.Waiting += mb.waiters
		s.Dropped += mb.dropped
	}
	return s
}
