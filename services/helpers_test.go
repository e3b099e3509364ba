package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"l3v3l_server/models"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type notification struct {
	username string
	trigger  models.Trigger
	data     map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, username string, trigger models.Trigger, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification{username, trigger, data})
	return nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPublisher) PublishJob(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []QueueEvent
}

func (s *recordingSink) PublishQueueEvent(ev QueueEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) last() QueueEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

var errBrokerDown = errors.New("broker down")
