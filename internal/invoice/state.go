package invoice

import "errors"

type PaymentState string

const (
	// StatePending means no payment updates have been received yet.
	StatePending PaymentState = "PENDING"
	// StateWaitingForConfirmation means the invoice has been paid but the
	// transactions lack the required confirmation depth. It may have been
	// under- or overpaid, check the amount state.
	StateWaitingForConfirmation PaymentState = "WAITING_FOR_CONFIRMATION"
	// StateConfirmed is terminal: paid and sufficiently confirmed.
	StateConfirmed PaymentState = "CONFIRMED"
)

type AmountState string

const (
	AmountExact     AmountState = "EXACT"
	AmountUnderpaid AmountState = "UNDERPAID"
	AmountOverpaid  AmountState = "OVERPAID"
)

var (
	ErrInvalidTransition = errors.New("invalid payment state transition")
	ErrAmountMismatch    = errors.New("transaction amount mismatch")
)

// validTransitions maps each state to the states reachable from it.
// Staying in the current state is always allowed and handled separately.
var validTransitions = map[PaymentState][]PaymentState{
	StatePending:                {StateWaitingForConfirmation, StateConfirmed},
	StateWaitingForConfirmation: {StateConfirmed},
	StateConfirmed:              {},
}

// IsValidTransition reports whether the state machine permits moving
// from one payment state to another.
func IsValidTransition(from, to PaymentState) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsCompleteState reports whether a payment state is final. Complete
// invoices do not accept any more updates.
func IsCompleteState(state PaymentState) bool {
	return state == StateConfirmed
}
