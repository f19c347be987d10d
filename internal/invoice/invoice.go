// Package invoice holds the payment request entity: its transaction
// ledger, the derived amount and confirmation figures, and the payment
// state machine. All amounts are satoshis.
package invoice

import (
	"fmt"
	"time"

	"BTCPayGateway/internal/signature"
)

// Transaction is one reported payment event contributing to an invoice,
// keyed by its chain transaction hash.
type Transaction struct {
	Hash          string    `json:"hash"`
	Amount        int64     `json:"amount"`
	Confirmations int64     `json:"confirmations"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StateTransition is one entry of the append-only payment state audit log.
type StateTransition struct {
	PreviousState PaymentState `json:"previousState"`
	NewState      PaymentState `json:"newState"`
	Date          time.Time    `json:"date"`
}

// Invoice is a single payment request. The payment state is unexported
// so it can only change through SetPaymentState.
type Invoice struct {
	ID               string
	DueAmount        int64
	Message          string
	Address          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Transactions     []Transaction
	StateTransitions []StateTransition

	// Revision is the store's optimistic concurrency token. The entity
	// never touches it.
	Revision int64

	paymentState PaymentState
}

// Params carries the information needed to create a new invoice.
type Params struct {
	ID        string
	DueAmount int64
	Message   string
	Address   string
}

// Record is the flat serialized form of an invoice. Rehydrating a
// record through FromRecord reproduces the behavior of the instance
// that produced it.
type Record struct {
	ID               string            `json:"id"`
	DueAmount        int64             `json:"dueAmount"`
	Message          string            `json:"message"`
	Address          string            `json:"address"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Transactions     []Transaction     `json:"transactions"`
	StateTransitions []StateTransition `json:"stateTransitions"`
	PaymentState     PaymentState      `json:"paymentState"`
	Revision         int64             `json:"-"`
}

// New creates a pending invoice with an empty ledger.
func New(params Params) (*Invoice, error) {
	if params.DueAmount <= 0 {
		return nil, fmt.Errorf("due amount must be positive, got %d", params.DueAmount)
	}

	now := time.Now().UTC()
	return &Invoice{
		ID:           params.ID,
		DueAmount:    params.DueAmount,
		Message:      params.Message,
		Address:      params.Address,
		CreatedAt:    now,
		UpdatedAt:    now,
		paymentState: StatePending,
	}, nil
}

// FromRecord rehydrates an invoice from its serialized form.
func FromRecord(rec Record) *Invoice {
	inv := &Invoice{
		ID:               rec.ID,
		DueAmount:        rec.DueAmount,
		Message:          rec.Message,
		Address:          rec.Address,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		Transactions:     append([]Transaction(nil), rec.Transactions...),
		StateTransitions: append([]StateTransition(nil), rec.StateTransitions...),
		Revision:         rec.Revision,
		paymentState:     rec.PaymentState,
	}
	if inv.paymentState == "" {
		inv.paymentState = StatePending
	}
	return inv
}

// Record returns the serialized form of the invoice.
func (inv *Invoice) Record() Record {
	return Record{
		ID:               inv.ID,
		DueAmount:        inv.DueAmount,
		Message:          inv.Message,
		Address:          inv.Address,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
		Transactions:     append([]Transaction(nil), inv.Transactions...),
		StateTransitions: append([]StateTransition(nil), inv.StateTransitions...),
		PaymentState:     inv.paymentState,
		Revision:         inv.Revision,
	}
}

// RegisterTransaction adds a new ledger entry or updates the
// confirmation count of an existing one with the same hash. Reporting a
// different amount for a known hash is a data integrity violation and
// leaves the ledger untouched.
func (inv *Invoice) RegisterTransaction(tx Transaction) error {
	now := time.Now().UTC()
	inv.UpdatedAt = now

	for i := range inv.Transactions {
		existing := &inv.Transactions[i]
		if existing.Hash != tx.Hash {
			continue
		}
		if existing.Amount != tx.Amount {
			return fmt.Errorf("%w: invoice %q transaction %q reported amount %d, recorded amount %d",
				ErrAmountMismatch, inv.Address, tx.Hash, tx.Amount, existing.Amount)
		}
		existing.Confirmations = tx.Confirmations
		existing.UpdatedAt = now
		return nil
	}

	tx.CreatedAt = now
	tx.UpdatedAt = now
	inv.Transactions = append(inv.Transactions, tx)
	return nil
}

// SetPaymentState transitions the invoice to a new payment state.
// Requesting the current state is a no-op. An invalid transition leaves
// the invoice unmodified.
func (inv *Invoice) SetPaymentState(newState PaymentState) error {
	if newState == inv.paymentState {
		return nil
	}
	if !IsValidTransition(inv.paymentState, newState) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, inv.paymentState, newState)
	}

	now := time.Now().UTC()
	inv.StateTransitions = append(inv.StateTransitions, StateTransition{
		PreviousState: inv.paymentState,
		NewState:      newState,
		Date:          now,
	})
	inv.paymentState = newState
	inv.UpdatedAt = now
	return nil
}

func (inv *Invoice) PaymentState() PaymentState {
	return inv.paymentState
}

// PaidAmount is the sum over all registered transactions.
func (inv *Invoice) PaidAmount() int64 {
	var paid int64
	for _, tx := range inv.Transactions {
		paid += tx.Amount
	}
	return paid
}

// AmountState reports whether the invoice is under-, over- or exactly paid.
func (inv *Invoice) AmountState() AmountState {
	paid := inv.PaidAmount()
	switch {
	case paid > inv.DueAmount:
		return AmountOverpaid
	case paid < inv.DueAmount:
		return AmountUnderpaid
	default:
		return AmountExact
	}
}

// ConfirmationCount is the minimum confirmation count over all
// transactions, zero for an empty ledger. The invoice is only as
// confirmed as its least-confirmed contribution.
func (inv *Invoice) ConfirmationCount() int64 {
	if len(inv.Transactions) == 0 {
		return 0
	}
	min := inv.Transactions[0].Confirmations
	for _, tx := range inv.Transactions[1:] {
		if tx.Confirmations < min {
			min = tx.Confirmations
		}
	}
	return min
}

func (inv *Invoice) HasSufficientConfirmations(required int64) bool {
	return inv.ConfirmationCount() >= required
}

func (inv *Invoice) IsComplete() bool {
	return IsCompleteState(inv.paymentState)
}

// Signature returns the callback token for this invoice.
func (inv *Invoice) Signature(secret string) string {
	return signature.Sign(inv.DueAmount, inv.Message, secret)
}
