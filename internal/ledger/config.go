package ledger

// Config configures ledger policy.
type Config struct {
	// AllowSelfPurchase permits a seller to buy their own listing. The
	// original contract never exercised this path; the default rejects it
	// because a self-purchase only shuffles the seller's balance and
	// consumes the listing for nothing.
	AllowSelfPurchase bool
}

// DefaultConfig returns the default ledger policy.
func DefaultConfig() Config {
	return Config{
		AllowSelfPurchase: false,
	}
}
