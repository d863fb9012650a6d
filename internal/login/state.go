// SPDX-License-Identifier: AGPL-3.0-or-later
package login

import (
	"errors"
	"fmt"
)

// State is a position in the login sequence.
type State int

const (
	StateDeregister State = iota
	StateRegister
	StateFetchCode
	StateLogin
	StateVerify
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateDeregister: "deregister",
	StateRegister:   "register",
	StateFetchCode:  "fetch_code",
	StateLogin:      "login",
	StateVerify:     "verify",
	StateDone:       "done",
	StateFailed:     "failed",
}

// Steps lists the working states in execution order.
var Steps = []State{StateDeregister, StateRegister, StateFetchCode, StateLogin, StateVerify}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("login: unknown state %q", string(b))
}

// ErrInvalidTransition is returned for any move other than one step forward
// or into Failed.
var ErrInvalidTransition = errors.New("login: invalid state transition")

// machine tracks the current state and every state entered so far.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateDeregister, history: []State{StateDeregister}}
}

func (m *machine) transition(to State) error {
	if !isAllowedTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

func isAllowedTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	return to == StateFailed || to == from+1
}
