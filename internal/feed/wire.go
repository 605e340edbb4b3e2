package feed

import (
	"encoding/json"

	"nft-market-ledger/internal/domain"
)

// WireEvent is the JSON shape of one ledger event on the feed. Amounts are
// decimal strings so 256-bit values survive JSON number handling.
type WireEvent struct {
	EventID      string  `json:"event_id"`
	Seq          uint64  `json:"seq"`
	Type         string  `json:"type"`
	TokenID      *uint64 `json:"token_id,omitempty"`
	ListingID    *uint64 `json:"listing_id,omitempty"`
	Actor        string  `json:"actor"`
	Counterparty string  `json:"counterparty,omitempty"`
	Amount       string  `json:"amount,omitempty"`
	Locator      string  `json:"locator,omitempty"`
	EmittedAt    int64   `json:"emitted_at"`
}

// encodeEvent renders an event into its wire JSON form.
func encodeEvent(e *domain.Event) ([]byte, error) {
	w := WireEvent{
		EventID:      e.EventID,
		Seq:          e.Seq,
		Type:         string(e.Type),
		TokenID:      e.TokenID,
		ListingID:    e.ListingID,
		Actor:        string(e.Actor),
		Counterparty: string(e.Counterparty),
		Locator:      e.Locator,
		EmittedAt:    e.EmittedAt,
	}
	if e.Amount != nil {
		w.Amount = e.Amount.Dec()
	}
	return json.Marshal(w)
}
