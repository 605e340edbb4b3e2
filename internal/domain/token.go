package domain

// Address identifies an account that can hold tokens and balances.
// The ledger treats addresses as opaque strings; format validation
// (base58-encoded ed25519 point) happens at the API boundary.
type Address string

// Token is a uniquely identified, singly-owned asset record.
// Corresponds to the tokens table.
type Token struct {
	ID              uint64  // dense, assigned at mint, never reused
	Owner           Address // current holder, mutated only by buy/transfer
	MetadataLocator string  // opaque content locator, immutable after mint
	MintedAt        int64   // mint timestamp (ms)
}
