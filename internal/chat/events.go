package chat

import "sync"

// Event is one of MessageReceived, PeerJoined, PeerLeft or StatusChanged.
type Event interface {
	event()
}

// MessageReceived is emitted for local echoes, inbound messages and for
// every stored message after a history merge, so ids may repeat.
type MessageReceived struct {
	Message Message
}

type PeerJoined struct {
	Peer PeerInfo
}

type PeerLeft struct {
	PeerID string
}

type StatusChanged struct {
	Status Status
}

func (MessageReceived) event() {}
func (PeerJoined) event()      {}
func (PeerLeft) event()        {}
func (StatusChanged) event()   {}

type broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[*Subscription]struct{})}
}

func (b *broker) subscribe() *Subscription {
	s := &Subscription{
		broker: b,
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.finish()
		go s.pump()
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// publish never blocks on subscribers.
func (b *broker) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		s.push(e)
	}
}

func (b *broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

// close ends every subscription after its queued events are delivered.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for s := range b.subs {
		s.finish()
		delete(b.subs, s)
	}
}

// Subscription is an unbounded FIFO of session events. Events are
// delivered on the channel returned by Events, which is closed once the
// subscription ends.
type Subscription struct {
	broker *broker

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	finished bool

	out      chan Event
	done     chan struct{}
	stopOnce sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Close stops delivery and drops queued events.
func (s *Subscription) Close() {
	s.broker.remove(s)
	s.stopOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	s.queue = nil
	s.finished = true
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.queue = append(s.queue, e)
	s.cond.Signal()
}

func (s *Subscription) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.finished {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}
