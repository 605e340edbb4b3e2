package ledger

import "errors"

// Ledger errors. All of them are caller-input or caller-authorization
// failures: the core has no I/O and therefore no transient error class.
// Every error aborts the whole operation with zero state mutation.
var (
	// ErrUnknownToken is returned when the token id was never minted.
	ErrUnknownToken = errors.New("unknown token")

	// ErrNotOwner is returned when the caller does not hold the token.
	ErrNotOwner = errors.New("caller is not the token owner")

	// ErrNotSeller is returned when the caller did not create the listing.
	ErrNotSeller = errors.New("caller is not the listing seller")

	// ErrAlreadyListed is returned when the token already has an active listing.
	ErrAlreadyListed = errors.New("token already listed")

	// ErrNotListed is returned when no active listing exists for the token.
	ErrNotListed = errors.New("token not listed")

	// ErrInvalidPrice is returned when the listing price is zero.
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrInsufficientPayment is returned when the attached payment is below
	// the listing price.
	ErrInsufficientPayment = errors.New("payment below listing price")

	// ErrOverPayment is returned when the attached payment exceeds the
	// listing price. Overpayment is rejected rather than refunded so every
	// sale settles the exact listed amount.
	ErrOverPayment = errors.New("payment above listing price")

	// ErrSelfPurchase is returned when the buyer equals the seller and the
	// ledger is configured to reject self-purchases.
	ErrSelfPurchase = errors.New("seller cannot buy own listing")

	// ErrInsufficientFunds is returned when the buyer's balance cannot
	// cover the attached payment, or a withdrawal exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidLocator is returned when the metadata locator is empty.
	ErrInvalidLocator = errors.New("metadata locator must be non-empty")

	// ErrInvalidAmount is returned when a deposit or withdrawal amount
	// is zero.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidAccount is returned when an account identifier is empty.
	ErrInvalidAccount = errors.New("account must be non-empty")
)
