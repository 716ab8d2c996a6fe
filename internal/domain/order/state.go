package order

import "github.com/go-faster/errors"

// State is the persisted checkout state of an order. It is the single source
// of truth for which checkout step the order is on.
type State string

const (
	StateCart         State = "cart"
	StateAddress      State = "address"
	StatePayment      State = "payment"
	StateConfirmation State = "confirmation"
	StateComplete     State = "complete"
)

// States lists every state in strict forward order.
var States = []State{
	StateCart,
	StateAddress,
	StatePayment,
	StateConfirmation,
	StateComplete,
}

// ErrUnknownState is returned by ParseState for values outside States.
var ErrUnknownState = errors.New("unknown order state")

// ParseState converts a stored value into a State.
func ParseState(s string) (State, error) {
	for _, st := range States {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownState, "%q", s)
}

// Index returns the position of s in States, or -1 for unknown states.
func (s State) Index() int {
	for i, st := range States {
		if st == s {
			return i
		}
	}
	return -1
}

// Before reports whether s comes strictly before other in the sequence.
func (s State) Before(other State) bool {
	return s.Index() < other.Index()
}

// Next returns the state following s. The complete state has no successor
// and returns itself.
func (s State) Next() State {
	i := s.Index()
	if i < 0 || i+1 >= len(States) {
		return s
	}
	return States[i+1]
}

func (s State) String() string {
	return string(s)
}
