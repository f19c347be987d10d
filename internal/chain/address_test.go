package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceivingAddress(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"xpub":      q.Get("xpub"),
			"callback":  q.Get("callback"),
			"key":       q.Get("key"),
			"gap_limit": q.Get("gap_limit"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa","index":23,"callback":"https://example.com/payment/handle-payment?signature=abc"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:  srv.URL,
		XPub:     "xpub-test",
		APIKey:   "key-test",
		GapLimit: 20,
	}, zerolog.Nop())

	out, err := client.GenerateReceivingAddress(context.Background(), "https://example.com/payment/handle-payment?signature=abc")
	require.NoError(t, err)

	assert.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", out.Address)
	assert.Equal(t, int64(23), out.Index)
	assert.Equal(t, "xpub-test", gotQuery["xpub"])
	assert.Equal(t, "key-test", gotQuery["key"])
	assert.Equal(t, "20", gotQuery["gap_limit"])
	assert.Equal(t, "https://example.com/payment/handle-payment?signature=abc", gotQuery["callback"])
}

func TestGenerateReceivingAddressOmitsUnsetGapLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("gap_limit"))
		_, _ = w.Write([]byte(`{"address":"addr","index":0,"callback":"cb"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, XPub: "x", APIKey: "k"}, zerolog.Nop())
	_, err := client.GenerateReceivingAddress(context.Background(), "cb")
	require.NoError(t, err)
}

func TestGenerateReceivingAddressRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid xpub", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, XPub: "x", APIKey: "k"}, zerolog.Nop())
	_, err := client.GenerateReceivingAddress(context.Background(), "cb")

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusUnauthorized, remoteErr.Status)
	assert.Equal(t, "Invalid xpub", remoteErr.Body)
}

func TestGenerateReceivingAddressTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(ClientConfig{BaseURL: srv.URL, XPub: "x", APIKey: "k"}, zerolog.Nop())
	_, err := client.GenerateReceivingAddress(context.Background(), "cb")

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 0, remoteErr.Status)
}

func TestMultiClientFailsOver(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	var goodCalls int
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodCalls++
		_, _ = w.Write([]byte(`{"address":"addr-good","index":1,"callback":"cb"}`))
	}))
	defer good.Close()

	multi, err := NewMultiClient([]*Client{
		NewClient(ClientConfig{BaseURL: bad.URL, XPub: "x", APIKey: "k"}, zerolog.Nop()),
		NewClient(ClientConfig{BaseURL: good.URL, XPub: "x", APIKey: "k"}, zerolog.Nop()),
	}, 3)
	require.NoError(t, err)

	out, err := multi.GenerateReceivingAddress(context.Background(), "cb")
	require.NoError(t, err)
	assert.Equal(t, "addr-good", out.Address)
	assert.Equal(t, 1, goodCalls)
}

func TestMultiClientAllEndpointsFailing(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer bad.Close()

	multi, err := NewMultiClient([]*Client{
		NewClient(ClientConfig{BaseURL: bad.URL, XPub: "x", APIKey: "k"}, zerolog.Nop()),
	}, 1)
	require.NoError(t, err)

	_, err = multi.GenerateReceivingAddress(context.Background(), "cb")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadGateway, remoteErr.Status)
}

func TestNewMultiClientRequiresEndpoints(t *testing.T) {
	_, err := NewMultiClient(nil, 3)
	assert.Error(t, err)
}
