package domain

import "github.com/holiman/uint256"

// EventType identifies the ledger state change an event records.
type EventType string

// Event types, one per mutating ledger operation.
const (
	EventMint     EventType = "MINT"
	EventListed   EventType = "LISTED"
	EventCanceled EventType = "CANCELED"
	EventSale     EventType = "SALE"
	EventTransfer EventType = "TRANSFER"
	EventDeposit  EventType = "DEPOSIT"
	EventWithdraw EventType = "WITHDRAW"
)

// Event is one entry of the append-only ledger event stream. Exactly one
// event is emitted per successful mutating call, none on failure. Seq is
// the global total order; EventID is a deterministic hash of the content.
type Event struct {
	EventID string    // sha256 hex, deterministic
	Seq     uint64    // global sequence, dense from 0
	Type    EventType // state change kind

	TokenID   *uint64 // nil for balance-only events
	ListingID *uint64 // set for LISTED/CANCELED/SALE

	// Actor is the account that drove the change: minter, seller,
	// transferor, or the funded account for DEPOSIT/WITHDRAW.
	Actor Address
	// Counterparty is the buyer on SALE and the recipient on TRANSFER.
	Counterparty Address

	Amount *uint256.Int // price or deposit/withdraw amount, nil otherwise

	// Locator is the metadata locator on MINT events, so the journal alone
	// suffices to rebuild full ledger state. Empty otherwise.
	Locator string

	EmittedAt int64 // commit timestamp (ms)
}
