package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event id using SHA256.
// Formula: SHA256(seq|type|token|actor|counterparty|amount)
// Token and amount are empty strings when the event carries none.
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	seq uint64,
	eventType string,
	token string,
	actor string,
	counterparty string,
	amount string,
) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s",
		seq,
		eventType,
		token,
		actor,
		counterparty,
		amount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
