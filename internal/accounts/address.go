// Package accounts defines the account address format used at the API
// boundary. The ledger itself treats addresses as opaque strings; this
// package is where their shape is enforced: base58-encoded 32-byte
// ed25519 curve points.
package accounts

import (
	"crypto/rand"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"nft-market-ledger/internal/domain"
)

// Address validation errors.
var (
	// ErrInvalidEncoding is returned when the address is not valid base58.
	ErrInvalidEncoding = errors.New("address is not valid base58")

	// ErrInvalidLength is returned when the decoded address is not 32 bytes.
	ErrInvalidLength = errors.New("address must decode to 32 bytes")

	// ErrNotOnCurve is returned when the decoded bytes are not a valid
	// ed25519 point.
	ErrNotOnCurve = errors.New("address is not an ed25519 point")
)

// Validate checks that addr is a base58-encoded 32-byte ed25519 point.
func Validate(addr domain.Address) error {
	decoded, err := base58.Decode(string(addr))
	if err != nil {
		return ErrInvalidEncoding
	}
	if len(decoded) != 32 {
		return ErrInvalidLength
	}
	if !isOnCurve(decoded) {
		return ErrNotOnCurve
	}
	return nil
}

// Generate returns a fresh random address. Used by tests and tooling;
// the service never creates accounts on behalf of callers.
func Generate() (domain.Address, error) {
	seed := make([]byte, 64)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}

	scalar, err := new(edwards25519.Scalar).SetUniformBytes(seed)
	if err != nil {
		return "", fmt.Errorf("derive scalar: %w", err)
	}

	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	return domain.Address(base58.Encode(point.Bytes())), nil
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
