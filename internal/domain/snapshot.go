package domain

import "github.com/holiman/uint256"

// Snapshot is a full copy of ledger state at one point of the serialized
// execution order. It is what the snapshot store persists and what replay
// reconstructs from the event journal.
type Snapshot struct {
	NextTokenID   uint64
	NextListingID uint64
	NextEventSeq  uint64

	Tokens   []*Token   // ascending token id
	Listings []*Listing // creation order (ascending listing id)
	Balances map[Address]*uint256.Int
}

// NewSnapshot returns an empty snapshot: no tokens, no listings,
// all counters at zero.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Balances: make(map[Address]*uint256.Int),
	}
}

// Clone returns a deep copy. Mutating the clone never affects the source.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		NextTokenID:   s.NextTokenID,
		NextListingID: s.NextListingID,
		NextEventSeq:  s.NextEventSeq,
		Balances:      make(map[Address]*uint256.Int, len(s.Balances)),
	}

	if s.Tokens != nil {
		out.Tokens = make([]*Token, 0, len(s.Tokens))
		for _, t := range s.Tokens {
			tokenCopy := *t
			out.Tokens = append(out.Tokens, &tokenCopy)
		}
	}

	if s.Listings != nil {
		out.Listings = make([]*Listing, 0, len(s.Listings))
		for _, l := range s.Listings {
			listingCopy := *l
			listingCopy.Price = new(uint256.Int).Set(l.Price)
			out.Listings = append(out.Listings, &listingCopy)
		}
	}

	for addr, bal := range s.Balances {
		out.Balances[addr] = new(uint256.Int).Set(bal)
	}

	return out
}
