// Package services composes the invoice entity with the address source
// and the store: invoice creation on one side, webhook reconciliation
// on the other.
package services

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"BTCPayGateway/internal/chain"
	"BTCPayGateway/internal/invoice"
	"BTCPayGateway/internal/signature"
)

var ErrInvalidDueAmount = errors.New("due amount must be positive")

// InvoiceStore is the persistence capability the services depend on.
// *store.Store satisfies it; tests use an in-memory fake.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	LoadInvoice(ctx context.Context, address string) (*invoice.Invoice, error)
	SaveInvoice(ctx context.Context, inv *invoice.Invoice) error
}

// InvoiceService mints invoices: it signs the callback URL, requests a
// receiving address bound to it and persists the new pending invoice.
type InvoiceService struct {
	Store       InvoiceStore
	Addresses   chain.AddressSource
	Secret      string
	CallbackURL string
	Log         zerolog.Logger
}

// CreateInvoice builds and persists a new invoice. Address-generation
// failures propagate and nothing is persisted on any failure path.
func (s *InvoiceService) CreateInvoice(ctx context.Context, dueAmount int64, message string) (*invoice.Invoice, error) {
	if dueAmount <= 0 {
		return nil, ErrInvalidDueAmount
	}

	sig := signature.Sign(dueAmount, message, s.Secret)
	decoratedCallback := s.CallbackURL + "?" + url.Values{"signature": {sig}}.Encode()

	receiving, err := s.Addresses.GenerateReceivingAddress(ctx, decoratedCallback)
	if err != nil {
		return nil, err
	}

	inv, err := invoice.New(invoice.Params{
		ID:        uuid.NewString(),
		DueAmount: dueAmount,
		Message:   message,
		Address:   receiving.Address,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("invoice_id", inv.ID).
		Str("address", inv.Address).
		Int64("due_amount", inv.DueAmount).
		Int64("address_index", receiving.Index).
		Msg("invoice created")
	return inv, nil
}

func (s *InvoiceService) GetInvoice(ctx context.Context, address string) (*invoice.Invoice, error) {
	return s.Store.LoadInvoice(ctx, address)
}
