package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"BTCPayGateway/internal/invoice"
	"BTCPayGateway/internal/pubsub"
	"BTCPayGateway/internal/signature"
	"BTCPayGateway/internal/store"
)

// Response tokens for the upstream payment processor. It keeps
// delivering notifications until it receives the terminal OKResponse.
const (
	OKResponse      = "*ok*"
	PendingResponse = "pending"
)

var ErrAuthenticationFailed = errors.New("payment notification failed authentication")

// maxApplyAttempts bounds the reload-and-reapply loop used when two
// notifications for the same address race on the save.
const maxApplyAttempts = 3

// Notification is one inbound "payment observed" webhook call.
type Notification struct {
	Address         string
	Signature       string
	TransactionHash string
	Value           int64
	Confirmations   int64
}

// PaymentService reconciles inbound payment notifications with the
// invoice ledger. Processing is idempotent under at-least-once
// delivery: replays never corrupt the ledger or duplicate audit
// entries.
type PaymentService struct {
	Store                 InvoiceStore
	Secret                string
	RequiredConfirmations int64

	// AllowLateUpdates switches the post-completion policy: instead of
	// freezing the invoice once confirmed, confirmation counts may still
	// be refreshed. The payment state never recomputes either way.
	AllowLateUpdates bool

	Events *pubsub.PubSub // optional, feeds the status stream
	Log    zerolog.Logger
}

// HandleNotification processes one webhook delivery and returns the
// response token for the sender. A concurrent save conflict reloads the
// invoice and reapplies the update.
func (s *PaymentService) HandleNotification(ctx context.Context, n Notification) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		ack, err := s.handleOnce(ctx, n)
		if err != nil && errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		}
		return ack, err
	}
	return "", lastErr
}

func (s *PaymentService) handleOnce(ctx context.Context, n Notification) (string, error) {
	inv, err := s.Store.LoadInvoice(ctx, n.Address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// ack unknown addresses so the processor stops resending
			// notifications for invoices this gateway no longer tracks
			s.Log.Warn().
				Str("address", n.Address).
				Str("transaction_hash", n.TransactionHash).
				Msg("invoice could not be found")
			return OKResponse, nil
		}
		return "", err
	}

	// authenticate against the persisted invoice's amount and message,
	// never against values carried by the request itself
	signatureValid := signature.Verify(n.Signature, inv.DueAmount, inv.Message, s.Secret)
	addressValid := inv.Address == n.Address
	if !signatureValid || !addressValid {
		s.Log.Warn().
			Str("address", n.Address).
			Str("transaction_hash", n.TransactionHash).
			Int64("value", n.Value).
			Int64("confirmations", n.Confirmations).
			Bool("signature_valid", signatureValid).
			Bool("address_valid", addressValid).
			Msg("got invalid payment update")
		return "", fmt.Errorf("%w: signature_valid=%t address_valid=%t",
			ErrAuthenticationFailed, signatureValid, addressValid)
	}

	if inv.IsComplete() {
		if !s.AllowLateUpdates {
			return OKResponse, nil
		}
		return s.applyLateUpdate(ctx, inv, n)
	}

	if err := inv.RegisterTransaction(invoice.Transaction{
		Hash:          n.TransactionHash,
		Amount:        n.Value,
		Confirmations: n.Confirmations,
	}); err != nil {
		s.Log.Warn().
			Err(err).
			Str("address", n.Address).
			Str("transaction_hash", n.TransactionHash).
			Msg("rejected payment update")
		return "", err
	}

	previous := inv.PaymentState()
	next := previous
	if previous == invoice.StatePending || previous == invoice.StateWaitingForConfirmation {
		if inv.HasSufficientConfirmations(s.RequiredConfirmations) {
			next = invoice.StateConfirmed
		} else {
			next = invoice.StateWaitingForConfirmation
		}
	}
	if err := inv.SetPaymentState(next); err != nil {
		return "", err
	}

	if previous != invoice.StateConfirmed && next == invoice.StateConfirmed {
		// fulfilment trigger point for collaborators
		s.Log.Info().
			Str("invoice_id", inv.ID).
			Str("address", inv.Address).
			Int64("paid_amount", inv.PaidAmount()).
			Str("amount_state", string(inv.AmountState())).
			Msg("invoice is now confirmed")
	}

	if err := s.Store.SaveInvoice(ctx, inv); err != nil {
		return "", err
	}
	s.publish(inv)

	s.Log.Info().
		Str("address", inv.Address).
		Str("transaction_hash", n.TransactionHash).
		Int64("confirmations", n.Confirmations).
		Str("payment_state", string(inv.PaymentState())).
		Msg("processed payment update")

	if inv.IsComplete() {
		return OKResponse, nil
	}
	return PendingResponse, nil
}

// applyLateUpdate refreshes the confirmation count of a known
// transaction on a completed invoice. The state machine is terminal at
// this point, so no state recomputation happens.
func (s *PaymentService) applyLateUpdate(ctx context.Context, inv *invoice.Invoice, n Notification) (string, error) {
	if err := inv.RegisterTransaction(invoice.Transaction{
		Hash:          n.TransactionHash,
		Amount:        n.Value,
		Confirmations: n.Confirmations,
	}); err != nil {
		s.Log.Warn().
			Err(err).
			Str("address", n.Address).
			Str("transaction_hash", n.TransactionHash).
			Msg("rejected late payment update")
		return "", err
	}
	if err := s.Store.SaveInvoice(ctx, inv); err != nil {
		return "", err
	}
	s.publish(inv)
	return OKResponse, nil
}

func (s *PaymentService) publish(inv *invoice.Invoice) {
	if s.Events != nil {
		s.Events.Publish(inv.Address, inv.Record())
	}
}
