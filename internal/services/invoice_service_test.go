package services

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BTCPayGateway/internal/chain"
	"BTCPayGateway/internal/invoice"
	"BTCPayGateway/internal/signature"
)

type fakeAddressSource struct {
	address      string
	index        int64
	err          error
	gotCallbacks []string
}

func (f *fakeAddressSource) GenerateReceivingAddress(ctx context.Context, callbackURL string) (*chain.ReceivingAddress, error) {
	f.gotCallbacks = append(f.gotCallbacks, callbackURL)
	if f.err != nil {
		return nil, f.err
	}
	return &chain.ReceivingAddress{Address: f.address, Index: f.index, Callback: callbackURL}, nil
}

func TestCreateInvoice(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	source := &fakeAddressSource{address: "bc1qfresh", index: 7}
	svc := &InvoiceService{
		Store:       fs,
		Addresses:   source,
		Secret:      testSecret,
		CallbackURL: "https://gw.example/handle-payment",
	}

	inv, err := svc.CreateInvoice(ctx, 10_000, "Coffee")
	require.NoError(t, err)

	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "bc1qfresh", inv.Address)
	assert.Equal(t, int64(10_000), inv.DueAmount)
	assert.Equal(t, invoice.StatePending, inv.PaymentState())

	// the callback carries the signature over the invoice's own fields
	require.Len(t, source.gotCallbacks, 1)
	parsed, err := url.Parse(source.gotCallbacks[0])
	require.NoError(t, err)
	assert.Equal(t, "/handle-payment", parsed.Path)
	assert.Equal(t, signature.Sign(10_000, "Coffee", testSecret), parsed.Query().Get("signature"))

	stored, err := fs.LoadInvoice(ctx, "bc1qfresh")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, stored.ID)
}

func TestCreateInvoicePropagatesAddressFailure(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	remoteErr := &chain.RemoteError{Status: 503, Body: "receive service down"}
	svc := &InvoiceService{
		Store:       fs,
		Addresses:   &fakeAddressSource{err: remoteErr},
		Secret:      testSecret,
		CallbackURL: "https://gw.example/handle-payment",
	}

	_, err := svc.CreateInvoice(ctx, 10_000, "Coffee")
	var got *chain.RemoteError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 503, got.Status)
	assert.Empty(t, fs.records)
}

func TestCreateInvoiceRejectsNonPositiveAmount(t *testing.T) {
	svc := &InvoiceService{
		Store:     newFakeStore(),
		Addresses: &fakeAddressSource{address: "bc1qfresh"},
		Secret:    testSecret,
	}

	_, err := svc.CreateInvoice(context.Background(), 0, "Coffee")
	assert.ErrorIs(t, err, ErrInvalidDueAmount)
	_, err = svc.CreateInvoice(context.Background(), -1, "Coffee")
	assert.ErrorIs(t, err, ErrInvalidDueAmount)
}
