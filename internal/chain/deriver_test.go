package chain

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BIP32 test vector 1 master public key.
const testXPub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

func TestDeriveProducesBech32Addresses(t *testing.T) {
	d := Deriver{XPub: testXPub, HRP: "bc"}

	addr0, err := d.Derive(0)
	require.NoError(t, err)
	addr1, err := d.Derive(1)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(addr0, "bc1"), addr0)
	assert.True(t, strings.HasPrefix(addr1, "bc1"), addr1)
	assert.NotEqual(t, addr0, addr1)

	// derivation is deterministic per index
	again, err := d.Derive(0)
	require.NoError(t, err)
	assert.Equal(t, addr0, again)
}

func TestDeriveRequiresConfiguration(t *testing.T) {
	_, err := Deriver{HRP: "bc"}.Derive(0)
	assert.Error(t, err)

	_, err = Deriver{XPub: testXPub}.Derive(0)
	assert.Error(t, err)

	_, err = Deriver{XPub: "not-an-xpub", HRP: "bc"}.Derive(0)
	assert.Error(t, err)
}

type fakeSequence struct{ next int64 }

func (s *fakeSequence) NextAddressIndex(ctx context.Context) (int64, error) {
	s.next++
	return s.next, nil
}

func TestLocalSourceAdvancesSequence(t *testing.T) {
	src := &LocalSource{
		Deriver: Deriver{XPub: testXPub, HRP: "bc"},
		Index:   &fakeSequence{},
	}

	first, err := src.GenerateReceivingAddress(context.Background(), "https://cb.example/handle-payment?signature=s")
	require.NoError(t, err)
	second, err := src.GenerateReceivingAddress(context.Background(), "https://cb.example/handle-payment?signature=s")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Index)
	assert.Equal(t, int64(2), second.Index)
	assert.NotEqual(t, first.Address, second.Address)
	assert.Equal(t, "https://cb.example/handle-payment?signature=s", first.Callback)
}
