package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// SatoshiPerBitcoin is the fixed minor-unit scale.
const SatoshiPerBitcoin = 100_000_000

var ErrNotANumber = errors.New("amount is not a number")

var satoshiScale = big.NewInt(SatoshiPerBitcoin)

// BitcoinToSatoshi converts a decimal bitcoin amount to satoshis,
// truncating toward zero. Sub-satoshi fractions are lost, never rounded up.
func BitcoinToSatoshi(value string) (int64, error) {
	value = strings.TrimSpace(value)
	rat, ok := new(big.Rat).SetString(value)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotANumber, value)
	}

	num := new(big.Int).Mul(rat.Num(), satoshiScale)
	sats := new(big.Int).Quo(num, rat.Denom())
	if !sats.IsInt64() {
		return 0, fmt.Errorf("%w: %q overflows satoshi range", ErrNotANumber, value)
	}
	return sats.Int64(), nil
}

// SatoshiToBitcoin converts satoshis to a decimal bitcoin string.
// The division is exact, there is no scale at which it can lose precision.
func SatoshiToBitcoin(sats int64) string {
	rat := new(big.Rat).SetFrac64(sats, SatoshiPerBitcoin)
	s := rat.FloatString(8)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
