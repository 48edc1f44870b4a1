package orders

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Crockford-ish alphabet: no lookalike characters in customer-facing numbers.
const orderNumberAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789"

const orderNumberRandomLen = 8

// NewOrderNumber builds an externally visible order number such as
// ZC20260825K7M2P9XA. The random suffix makes collisions under concurrent
// creation practically impossible; the unique index is the backstop and the
// caller retries on violation.
func NewOrderNumber(prefix string, now time.Time) (string, error) {
	buf := make([]byte, orderNumberRandomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("order number entropy: %w", err)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return prefix + now.Format("20060102") + string(buf), nil
}
