package room

import "sync"

// Mailbox runs posted callbacks one at a time, in posting order, on its own
// goroutine. Posting never blocks. Implementations use it to deliver room
// callbacks in order.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

func (m *Mailbox) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.queue = append(m.queue, fn)
	m.cond.Signal()
}

// Close drops anything still queued.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.queue = nil
	m.cond.Broadcast()
}

func (m *Mailbox) run() {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
	}
}
