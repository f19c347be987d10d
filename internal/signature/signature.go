// Package signature produces and verifies the keyed token that ties a
// payment callback to the invoice it was issued for.
package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
)

// Sign computes an HMAC-SHA512 over "<dueAmount>:<message>" encoded as
// lowercase hex. The field order is part of the wire contract.
func Sign(dueAmount int64, message, secret string) string {
	payload := strconv.FormatInt(dueAmount, 10) + ":" + message

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
// Callers must pass the persisted invoice's dueAmount and message, not
// values taken from the request being verified.
func Verify(candidate string, dueAmount int64, message, secret string) bool {
	expected := Sign(dueAmount, message, secret)
	return hmac.Equal([]byte(candidate), []byte(expected))
}
