// Package notify fans out events to any number of subscribers.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const multiplexerTimeout = 200 * time.Millisecond

type subscriber[E any] struct {
	ch      chan E
	comment string
}

// MultiplexerSender is the sending side of a Multiplexer.
type MultiplexerSender[E any] struct {
	m *Multiplexer[E]
}

// Send queues e for all subscribers without blocking the caller.
// Events are delivered in the order they were sent.
func (ms *MultiplexerSender[E]) Send(e E) {
	ms.m.enqueue(pending[E]{e: e})
}

// SendSync is Send, but returns once each subscriber has received e or timed out.
func (ms *MultiplexerSender[E]) SendSync(e E) {
	done := make(chan struct{})
	ms.m.enqueue(pending[E]{e: e, done: done})
	<-done
}

func NewMultiplexerSender[E any](comment string) (*MultiplexerSender[E], *Multiplexer[E]) {
	m := &Multiplexer[E]{
		comment: comment,
	}
	return &MultiplexerSender[E]{m: m}, m
}

type pending[E any] struct {
	e    E
	done chan struct{}
}

// Multiplexer is the receiving side; subscribers get every event sent after they subscribe.
type Multiplexer[E any] struct {
	comment         string
	subscribersLock sync.Mutex
	subscribers     []subscriber[E]

	queueLock sync.Mutex
	queue     []pending[E]
	// draining is true while a drain goroutine is running; there is at most one.
	draining bool
}

func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	m.subscribers = append(m.subscribers, subscriber[E]{
		ch:      c,
		comment: comment,
	})
}

// Unsubscribe removes c. It panics if c is not subscribed.
func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		panic("already unsubscribed")
	}
	m.subscribers = slices.Delete(m.subscribers, i, i+1)
}

// Len returns the number of subscribers.
func (m *Multiplexer[E]) Len() int {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	return len(m.subscribers)
}

func (m *Multiplexer[E]) enqueue(p pending[E]) {
	m.queueLock.Lock()
	defer m.queueLock.Unlock()
	m.queue = append(m.queue, p)
	if !m.draining {
		m.draining = true
		go m.drain()
	}
}

func (m *Multiplexer[E]) drain() {
	for {
		m.queueLock.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.queueLock.Unlock()
			return
		}
		p := m.queue[0]
		m.queue[0] = pending[E]{}
		m.queue = m.queue[1:]
		m.queueLock.Unlock()
		m.send(p.e)
		if p.done != nil {
			close(p.done)
		}
	}
}

func (m *Multiplexer[E]) send(e E) {
	m.subscribersLock.Lock()
	subs := slices.Clone(m.subscribers)
	m.subscribersLock.Unlock()
	for _, sub := range subs {
		select {
		case sub.ch <- e:
		case <-time.After(multiplexerTimeout):
			m.timeout(sub, e)
		}
	}
}

func (m *Multiplexer[E]) timeout(sub subscriber[E], e E) {
	zap.S().Warnw("subscriber timed out",
		"multiplexer", m.comment,
		"subscriber", sub.comment,
		"event", e)
}
