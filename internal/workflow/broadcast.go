package workflow

import (
	"log/slog"
	"sync"

	"scriptlab/internal/logging"
)

const defaultSubscriberCapacity = 16

// Change is one published session projection.
type Change struct {
	WorkflowID string `json:"workflow_id"`
	Reason     string `json:"reason"`
	View       View   `json:"view"`
}

// Subscription is an active feed of changes for one workflow.
type Subscription struct {
	Changes <-chan Change
	cancel  func()
}

// Close terminates the subscription and closes its channel.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Broadcaster fans session changes out to per-workflow subscribers over
// bounded channels. A slow subscriber loses its oldest pending change, never
// the newest.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	capacity    int
	logger      *slog.Logger
}

// NewBroadcaster constructs a broadcaster. Non-positive capacities use the
// default.
func NewBroadcaster(capacity int, logger *slog.Logger) *Broadcaster {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[*subscriber]struct{}),
		capacity:    capacity,
		logger:      logging.NewComponentLogger(logger, "broadcast"),
	}
}

// Subscribe registers for changes to workflowID.
func (b *Broadcaster) Subscribe(workflowID string) Subscription {
	sub := &subscriber{ch: make(chan Change, b.capacity)}
	b.mu.Lock()
	if b.subscribers[workflowID] == nil {
		b.subscribers[workflowID] = make(map[*subscriber]struct{})
	}
	b.subscribers[workflowID][sub] = struct{}{}
	b.mu.Unlock()
	return Subscription{
		Changes: sub.ch,
		cancel: func() {
			b.remove(workflowID, sub)
		},
	}
}

// Publish delivers change to every subscriber of its workflow. It never
// blocks.
func (b *Broadcaster) Publish(change Change) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[change.WorkflowID]))
	for sub := range b.subscribers[change.WorkflowID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if sub.deliver(change) {
			b.logger.Debug("dropped stale change for slow subscriber",
				logging.String(logging.FieldWorkflowID, change.WorkflowID),
			)
		}
	}
}

// Subscribers reports the live subscriber count for workflowID.
func (b *Broadcaster) Subscribers(workflowID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[workflowID])
}

func (b *Broadcaster) remove(workflowID string, sub *subscriber) {
	b.mu.Lock()
	if subs := b.subscribers[workflowID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, workflowID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Change
	closed bool
}

// deliver reports whether an older change was dropped to make room.
func (s *subscriber) deliver(change Change) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- change:
		return false
	default:
	}
	dropped := false
	select {
	case <-s.ch:
		dropped = true
	default:
	}
	select {
	case s.ch <- change:
	default:
	}
	return dropped
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
