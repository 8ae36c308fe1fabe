package wm

import (
	"sync"
	"time"
)

// MotionCoalescer buffers rapid position updates and applies the latest
// one at most rateHz times per second. Store, Stop and apply run on the
// event goroutine; the timer goroutine only hands flushes to post, and
// keeps at most one of them queued.
type MotionCoalescer struct {
	interval time.Duration
	post     func(func())
	apply    func(x, y int)

	mu      sync.Mutex
	x, y    int
	dirty   bool
	posted  bool
	gen     uint64
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMotionCoalescer returns a stopped coalescer. post must run its
// argument on the event goroutine.
func NewMotionCoalescer(rateHz int, post func(func()), apply func(x, y int)) *MotionCoalescer {
	if rateHz <= 0 {
		rateHz = 60
	}
	return &MotionCoalescer{
		interval: time.Second / time.Duration(rateHz),
		post:     post,
		apply:    apply,
	}
}

// Start begins periodic flushing. Starting a running coalescer is a no-op.
func (m *MotionCoalescer) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.dirty = false
	m.posted = false
	m.gen++
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.gen, m.stop, m.done)
}

func (m *MotionCoalescer) run(gen uint64, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			pending := m.dirty && !m.posted && m.gen == gen
			if pending {
				m.posted = true
			}
			m.mu.Unlock()
			if pending && !m.postOrStop(gen, stop) {
				return
			}
		}
	}
}

// postOrStop hands a flush to post, giving up once stop is closed. post may
// block on a stalled event loop, which is also where Stop waits for done.
func (m *MotionCoalescer) postOrStop(gen uint64, stop chan struct{}) bool {
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		m.post(func() { m.flush(gen) })
	}()
	select {
	case <-sent:
		return true
	case <-stop:
		return false
	}
}

// Store records the latest position, replacing any unflushed one.
func (m *MotionCoalescer) Store(x, y int) {
	m.mu.Lock()
	m.x, m.y = x, y
	m.dirty = true
	m.mu.Unlock()
}

// Stop cancels flushing. With flush set, a buffered position is applied
// before returning; otherwise it is discarded.
func (m *MotionCoalescer) Stop(flush bool) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.gen++
	stop, done := m.stop, m.done
	x, y, dirty := m.x, m.y, m.dirty
	m.dirty = false
	m.posted = false
	m.mu.Unlock()

	close(stop)
	<-done
	if flush && dirty {
		m.apply(x, y)
	}
}

// Running reports whether the coalescer is flushing.
func (m *MotionCoalescer) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// flush applies the buffered position unless the coalescer was stopped or
// restarted since the flush was posted.
func (m *MotionCoalescer) flush(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.posted = false
	if !m.dirty {
		m.mu.Unlock()
		return
	}
	x, y := m.x, m.y
	m.dirty = false
	m.mu.Unlock()
	m.apply(x, y)
}
