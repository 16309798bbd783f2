package ingest

import (
	"sync"
	"time"
)

// SubscriptionKey identifies the reply an ingestion is waiting for: the
// requester, the conversation, and the prompt message the reply must answer.
type SubscriptionKey struct {
	Requester    int64
	Conversation int64
	Prompt       int
}

type subscription struct {
	ticket   Ticket
	timer    *time.Timer
	onExpire func(Ticket)
}

// Subscriptions is a timed table of pending reply subscriptions. Each entry
// fires at most once: either Take claims it or its timer expires it, never
// both.
type Subscriptions struct {
	mu      sync.Mutex
	entries map[SubscriptionKey]*subscription
	closed  bool
}

// NewSubscriptions returns an empty table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{entries: make(map[SubscriptionKey]*subscription)}
}

// Add registers ticket under key. onExpire runs in its own goroutine if the
// subscription is still pending after timeout.
func (s *Subscriptions) Add(key SubscriptionKey, ticket Ticket, timeout time.Duration, onExpire func(Ticket)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for existing := range s.entries {
		if existing.Requester == key.Requester && existing.Conversation == key.Conversation {
			return ErrAlreadyWaiting
		}
	}
	sub := &subscription{ticket: ticket, onExpire: onExpire}
	sub.timer = time.AfterFunc(timeout, func() {
		s.expire(key, sub)
	})
	s.entries[key] = sub
	return nil
}

func (s *Subscriptions) expire(key SubscriptionKey, sub *subscription) {
	s.mu.Lock()
	current, ok := s.entries[key]
	if !ok || current != sub {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	s.mu.Unlock()
	if sub.onExpire != nil {
		sub.onExpire(sub.ticket)
	}
}

// Take claims the subscription for key, cancelling its expiry.
func (s *Subscriptions) Take(key SubscriptionKey) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.entries[key]
	if !ok {
		return Ticket{}, false
	}
	delete(s.entries, key)
	sub.timer.Stop()
	return sub.ticket, true
}

// TakeFor claims whichever subscription the requester holds in conversation,
// regardless of prompt.
func (s *Subscriptions) TakeFor(requester, conversation int64) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sub := range s.entries {
		if key.Requester == requester && key.Conversation == conversation {
			delete(s.entries, key)
			sub.timer.Stop()
			return sub.ticket, true
		}
	}
	return Ticket{}, false
}

// Waiting reports whether the requester holds a subscription in
// conversation.
func (s *Subscriptions) Waiting(requester, conversation int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.Requester == requester && key.Conversation == conversation {
			return true
		}
	}
	return false
}

// Len returns the number of pending subscriptions.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops every pending timer and drops the entries without running
// their expiry callbacks. The returned tickets are the ones dropped.
func (s *Subscriptions) Close() []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	dropped := make([]Ticket, 0, len(s.entries))
	for key, sub := range s.entries {
		sub.timer.Stop()
		dropped = append(dropped, sub.ticket)
		delete(s.entries, key)
	}
	return dropped
}
