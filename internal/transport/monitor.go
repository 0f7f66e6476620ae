package transport

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// State is the session-level connection state.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

func stateFromPion(s webrtc.PeerConnectionState) (State, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return StateNew, true
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return StateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return StateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return StateClosed, true
	default:
		return 0, false
	}
}

var (
	ErrHandlerRegistered = errors.New("state change handler already registered")
	ErrSessionFailed     = errors.New("session failed")
	ErrSessionClosed     = errors.New("session closed")
)

// Monitor tracks PeerConnection state transitions and raises a single
// completion signal when the session reaches Failed or Closed.
//
// Notifications are queued without blocking the caller and delivered in order
// to the registered handler from a dedicated goroutine. Transitions observed
// before registration are delivered once the handler is set.
type Monitor struct {
	mu      sync.Mutex
	current State
	pending []State
	handler func(State)
	err     error

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func newMonitor() *Monitor {
	return &Monitor{
		current: StateNew,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnStateChange registers fn for every subsequent transition. Only one
// handler may be registered.
func (m *Monitor) OnStateChange(fn func(State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handler != nil {
		return ErrHandlerRegistered
	}
	m.handler = fn
	go m.dispatch(fn)
	m.signal()

	return nil
}

// State returns the last observed state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Done is closed once the session reaches Failed or Closed.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Err returns ErrSessionFailed or ErrSessionClosed after Done is closed, and
// nil before.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// observe is the pion callback. It never blocks.
func (m *Monitor) observe(ps webrtc.PeerConnectionState) {
	s, ok := stateFromPion(ps)
	if !ok {
		return
	}

	m.mu.Lock()
	if s == m.current || m.current.Terminal() {
		m.mu.Unlock()
		return
	}
	m.current = s
	m.pending = append(m.pending, s)
	if s.Terminal() {
		if s == StateFailed {
			m.err = ErrSessionFailed
		} else {
			m.err = ErrSessionClosed
		}
	}
	m.signal()
	m.mu.Unlock()

	if s.Terminal() {
		m.doneOnce.Do(func() { close(m.done) })
	}
}

func (m *Monitor) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) dispatch(fn func(State)) {
	for {
		select {
		case <-m.wake:
			m.deliver(fn)
		case <-m.stop:
			m.deliver(fn)
			return
		}
	}
}

func (m *Monitor) deliver(fn func(State)) {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, s := range batch {
		fn(s)
	}
}

// shutdown stops the dispatcher after delivering any queued transitions.
func (m *Monitor) shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
}
