// Package wsclient is a Go observer for the event stream: it dials the
// gateway, keeps the connection alive and redials with exponential backoff.
package wsclient

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is a position in the reconnect state machine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var ErrInvalidTransition = errors.New("invalid reconnect transition")

// Delay is the wait before the n-th retry: base * 2^(n-1). n starts at 1.
func Delay(base time.Duration, n int) time.Duration {
	if n < 1 {
		return 0
	}
	return base << (n - 1)
}

// Reconnector tracks connection attempts:
//
//	idle -> connecting -> connected
//	connecting|connected -> reconnecting -> connecting   (failure, attempts left)
//	connecting|connected -> exhausted                     (failure, none left)
//
// A successful connection resets the attempt count.
type Reconnector struct {
	mu          sync.Mutex
	base        time.Duration
	maxAttempts int
	state       State
	attempt     int
	onChange    func(State)
}

// NewReconnector returns a machine in the idle state. onChange, if not nil,
// is called after every transition.
func NewReconnector(base time.Duration, maxAttempts int, onChange func(State)) *Reconnector {
	return &Reconnector{base: base, maxAttempts: maxAttempts, onChange: onChange}
}

func (r *Reconnector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attempt is the number of retries scheduled since the last success.
func (r *Reconnector) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

func (r *Reconnector) set(s State) {
	r.state = s
	if r.onChange != nil {
		r.onChange(s)
	}
}

func (r *Reconnector) transition(from []State, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range from {
		if r.state == f {
			r.set(to)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, to)
}

// Start begins the first connection attempt.
func (r *Reconnector) Start() error {
	return r.transition([]State{StateIdle}, StateConnecting)
}

// Succeeded records an established connection.
func (r *Reconnector) Succeeded() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateConnecting {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, StateConnected)
	}
	r.attempt = 0
	r.set(StateConnected)
	return nil
}

// Failed records a failed dial or a lost connection. It returns the delay
// before the next attempt, or ok=false once attempts are used up.
func (r *Reconnector) Failed() (delay time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateConnecting && r.state != StateConnected {
		return 0, false
	}
	if r.attempt >= r.maxAttempts {
		r.set(StateExhausted)
		return 0, false
	}
	r.attempt++
	r.set(StateReconnecting)
	return Delay(r.base, r.attempt), true
}

// Retry moves from the backoff wait to the next attempt.
func (r *Reconnector) Retry() error {
	return r.transition([]State{StateReconnecting}, StateConnecting)
}

// Reset returns to idle from any state.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt = 0
	r.set(StateIdle)
}
