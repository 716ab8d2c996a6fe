// Package checkout implements the checkout state machine: which step an order
// is on, what a step request may do, and where the buyer goes next.
//
// The current step is never stored. It is derived from order.State by
// StepFor, and every transition goes through Engine.
package checkout

import (
	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Step is a user-facing checkout step.
type Step string

const (
	StepDetails Step = "details"
	StepPayment Step = "payment"
	StepSummary Step = "summary"
)

// Steps lists the checkout steps in the order the buyer walks them.
var Steps = []Step{StepDetails, StepPayment, StepSummary}

var (
	// ErrInvalidStep is returned for an unknown step name.
	ErrInvalidStep = errors.New("invalid checkout step")
	// ErrStepMismatch is returned when an update names a step other than the
	// order's current one.
	ErrStepMismatch = errors.New("checkout step does not match order state")
	// ErrOrderComplete is returned when an update targets a completed order.
	ErrOrderComplete = errors.New("order is already complete")
)

// ParseStep accepts both user-facing step names and the state names they
// map to ("address" for details, "confirmation" for summary).
func ParseStep(s string) (Step, error) {
	switch s {
	case "details", "address":
		return StepDetails, nil
	case "payment":
		return StepPayment, nil
	case "summary", "confirmation":
		return StepSummary, nil
	default:
		return "", errors.Wrapf(ErrInvalidStep, "%q", s)
	}
}

// StepFor returns the canonical step for an order state. A cart has not
// started checkout, so it lands on details. ok is false for a completed
// order, which has no checkout step.
func StepFor(s order.State) (step Step, ok bool) {
	switch s {
	case order.StateCart, order.StateAddress:
		return StepDetails, true
	case order.StatePayment:
		return StepPayment, true
	case order.StateConfirmation:
		return StepSummary, true
	default:
		return "", false
	}
}

// State returns the order state a buyer on this step is in.
func (s Step) State() order.State {
	switch s {
	case StepPayment:
		return order.StatePayment
	case StepSummary:
		return order.StateConfirmation
	default:
		return order.StateAddress
	}
}

// Target returns the state an order moves to once this step is submitted
// successfully.
func (s Step) Target() order.State {
	return s.State().Next()
}

// Index returns the position of s in Steps, or -1.
func (s Step) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Before reports whether s comes strictly before other.
func (s Step) Before(other Step) bool {
	return s.Index() < other.Index()
}

func (s Step) String() string {
	return string(s)
}
