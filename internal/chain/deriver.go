package chain

import (
	"context"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"golang.org/x/crypto/ripemd160"
)

// Deriver derives P2WPKH receiving addresses from an account extended
// public key. The xpub is expected at the external chain of the
// account (m/84'/0'/0'/0); Derive produces child index i of it.
type Deriver struct {
	XPub string
	HRP  string // human readable part, "bc" for mainnet
}

func (d Deriver) Derive(index uint32) (string, error) {
	if d.XPub == "" {
		return "", errors.New("xpub is not configured")
	}
	if d.HRP == "" {
		return "", errors.New("address prefix is not configured")
	}

	key, err := hdkeychain.NewKeyFromString(d.XPub)
	if err != nil {
		return "", err
	}
	child, err := key.Derive(index)
	if err != nil {
		return "", err
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", err
	}

	// hash160 of the compressed pubkey is the witness program
	hash := sha256.Sum256(pubKey.SerializeCompressed())
	rip := ripemd160.New()
	_, _ = rip.Write(hash[:])
	program := rip.Sum(nil)

	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	// witness version 0 leads the data part
	return bech32.Encode(d.HRP, append([]byte{0}, converted...))
}

// IndexSequence hands out monotonically increasing derivation indexes.
// Backed by a database sequence so restarts never reuse an address.
type IndexSequence interface {
	NextAddressIndex(ctx context.Context) (int64, error)
}

// LocalSource satisfies AddressSource without a remote service: each
// call takes the next index from the sequence and derives the address
// locally. The callback URL is echoed back; there is no upstream to
// register it with, the gateway is its own notification target.
type LocalSource struct {
	Deriver Deriver
	Index   IndexSequence
}

func (s *LocalSource) GenerateReceivingAddress(ctx context.Context, callbackURL string) (*ReceivingAddress, error) {
	idx, err := s.Index.NextAddressIndex(ctx)
	if err != nil {
		return nil, err
	}
	addr, err := s.Deriver.Derive(uint32(idx))
	if err != nil {
		return nil, err
	}
	return &ReceivingAddress{
		Address:  addr,
		Index:    idx,
		Callback: callbackURL,
	}, nil
}
