package replay

import (
	"fmt"

	"nft-market-ledger/internal/domain"
)

// Report is the outcome of verifying a snapshot against the journal. OK is
// true when the rebuilt state matches the snapshot exactly; otherwise
// Mismatches lists every difference found.
type Report struct {
	OK         bool
	Events     int
	Mismatches []string
}

// Verify rebuilds state from the event stream and compares it to the
// snapshot field by field. A journal that cannot be rebuilt is an error;
// a clean rebuild that disagrees with the snapshot is a mismatch report.
func Verify(snap *domain.Snapshot, events []*domain.Event) (*Report, error) {
	rebuilt, err := Rebuild(events)
	if err != nil {
		return nil, err
	}

	r := &Report{Events: len(events)}

	if rebuilt.NextTokenID != snap.NextTokenID {
		r.add("next token id: journal %d, snapshot %d", rebuilt.NextTokenID, snap.NextTokenID)
	}
	if rebuilt.NextListingID != snap.NextListingID {
		r.add("next listing id: journal %d, snapshot %d", rebuilt.NextListingID, snap.NextListingID)
	}
	if rebuilt.NextEventSeq != snap.NextEventSeq {
		r.add("next event seq: journal %d, snapshot %d", rebuilt.NextEventSeq, snap.NextEventSeq)
	}

	if len(rebuilt.Tokens) != len(snap.Tokens) {
		r.add("token count: journal %d, snapshot %d", len(rebuilt.Tokens), len(snap.Tokens))
	} else {
		for i, want := range rebuilt.Tokens {
			got := snap.Tokens[i]
			if got.ID != want.ID || got.Owner != want.Owner ||
				got.MetadataLocator != want.MetadataLocator || got.MintedAt != want.MintedAt {
				r.add("token %d: journal %+v, snapshot %+v", want.ID, *want, *got)
			}
		}
	}

	if len(rebuilt.Listings) != len(snap.Listings) {
		r.add("listing count: journal %d, snapshot %d", len(rebuilt.Listings), len(snap.Listings))
	} else {
		for i, want := range rebuilt.Listings {
			got := snap.Listings[i]
			if got.ListingID != want.ListingID || got.TokenID != want.TokenID ||
				got.Seller != want.Seller || !got.Price.Eq(want.Price) || got.ListedAt != want.ListedAt {
				r.add("listing %d: journal %+v, snapshot %+v", want.ListingID, *want, *got)
			}
		}
	}

	for account, want := range rebuilt.Balances {
		got, ok := snap.Balances[account]
		if !ok {
			r.add("balance %s: journal %s, snapshot absent", account, want.Dec())
			continue
		}
		if !got.Eq(want) {
			r.add("balance %s: journal %s, snapshot %s", account, want.Dec(), got.Dec())
		}
	}
	for account, got := range snap.Balances {
		if _, ok := rebuilt.Balances[account]; !ok {
			r.add("balance %s: journal absent, snapshot %s", account, got.Dec())
		}
	}

	r.OK = len(r.Mismatches) == 0
	return r, nil
}

func (r *Report) add(format string, args ...any) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}
