package accounts

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"nft-market-ledger/internal/domain"
)

func TestGenerateProducesValidAddress(t *testing.T) {
	seen := make(map[domain.Address]bool)

	for i := 0; i < 20; i++ {
		addr, err := Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if err := Validate(addr); err != nil {
			t.Errorf("generated address failed validation: %v", err)
		}
		if seen[addr] {
			t.Errorf("duplicate address generated: %s", addr)
		}
		seen[addr] = true
	}
}

func TestValidate_RejectsBadEncoding(t *testing.T) {
	// 0, O, I, l are outside the base58 alphabet
	err := Validate("0OIl!!!")
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestValidate_RejectsWrongLength(t *testing.T) {
	short := domain.Address(base58.Encode([]byte("tooshort")))
	err := Validate(short)
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}

	long := domain.Address(base58.Encode(make([]byte, 33)))
	err = Validate(long)
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

func TestValidate_RejectsOffCurvePoint(t *testing.T) {
	// Walk sha256 outputs until one is off the curve; roughly half of all
	// 32-byte strings are.
	data := []byte("off-curve-seed")
	for i := 0; i < 256; i++ {
		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			addr := domain.Address(base58.Encode(hash[:]))
			if err := Validate(addr); !errors.Is(err, ErrNotOnCurve) {
				t.Errorf("expected ErrNotOnCurve, got %v", err)
			}
			return
		}
		data = hash[:]
	}
	t.Fatal("no off-curve point found in 256 attempts")
}
