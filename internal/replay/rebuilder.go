// Package replay reconstructs ledger state purely from the event journal
// and verifies persisted checkpoints against it. The journal is the source
// of truth: a snapshot is correct exactly when rebuilding the journal yields
// the same state.
package replay

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"nft-market-ledger/internal/domain"
)

// ErrCorruptJournal is returned when the event stream violates the ledger's
// emission rules: a sequence gap, an out-of-order id, or an event whose
// preconditions could never have held at commit time.
var ErrCorruptJournal = errors.New("corrupt event journal")

// Rebuild applies the full event stream to an empty state and returns the
// resulting snapshot. Events must be ordered by seq, dense from 0 — exactly
// what the journal stores.
func Rebuild(events []*domain.Event) (*domain.Snapshot, error) {
	tokens := make(map[uint64]*domain.Token)
	listings := make(map[uint64]*domain.Listing) // active, keyed by token id
	var listingOrder []*domain.Listing
	balances := make(map[domain.Address]*uint256.Int)

	var nextTokenID, nextListingID uint64

	for i, e := range events {
		if e == nil {
			return nil, fmt.Errorf("%w: nil event at position %d", ErrCorruptJournal, i)
		}
		if e.Seq != uint64(i) {
			return nil, fmt.Errorf("%w: seq %d at position %d", ErrCorruptJournal, e.Seq, i)
		}

		switch e.Type {
		case domain.EventMint:
			if e.TokenID == nil || e.Locator == "" || e.Actor == "" {
				return nil, fmt.Errorf("%w: malformed MINT at seq %d", ErrCorruptJournal, e.Seq)
			}
			if *e.TokenID != nextTokenID {
				return nil, fmt.Errorf("%w: MINT token id %d at seq %d, want %d",
					ErrCorruptJournal, *e.TokenID, e.Seq, nextTokenID)
			}
			tokens[*e.TokenID] = &domain.Token{
				ID:              *e.TokenID,
				Owner:           e.Actor,
				MetadataLocator: e.Locator,
				MintedAt:        e.EmittedAt,
			}
			nextTokenID++

		case domain.EventListed:
			if e.TokenID == nil || e.ListingID == nil || e.Amount == nil {
				return nil, fmt.Errorf("%w: malformed LISTED at seq %d", ErrCorruptJournal, e.Seq)
			}
			token, ok := tokens[*e.TokenID]
			if !ok {
				return nil, fmt.Errorf("%w: LISTED for unknown token %d at seq %d",
					ErrCorruptJournal, *e.TokenID, e.Seq)
			}
			if token.Owner != e.Actor {
				return nil, fmt.Errorf("%w: LISTED by non-owner at seq %d", ErrCorruptJournal, e.Seq)
			}
			if _, active := listings[*e.TokenID]; active {
				return nil, fmt.Errorf("%w: LISTED for already-listed token %d at seq %d",
					ErrCorruptJournal, *e.TokenID, e.Seq)
			}
			if *e.ListingID != nextListingID {
				return nil, fmt.Errorf("%w: LISTED id %d at seq %d, want %d",
					ErrCorruptJournal, *e.ListingID, e.Seq, nextListingID)
			}
			listing := &domain.Listing{
				ListingID: *e.ListingID,
				TokenID:   *e.TokenID,
				Seller:    e.Actor,
				Price:     new(uint256.Int).Set(e.Amount),
				ListedAt:  e.EmittedAt,
			}
			listings[*e.TokenID] = listing
			listingOrder = append(listingOrder, listing)
			nextListingID++

		case domain.EventCanceled:
			if e.TokenID == nil {
				return nil, fmt.Errorf("%w: malformed CANCELED at seq %d", ErrCorruptJournal, e.Seq)
			}
			listing, ok := listings[*e.TokenID]
			if !ok {
				return nil, fmt.Errorf("%w: CANCELED for unlisted token %d at seq %d",
					ErrCorruptJournal, *e.TokenID, e.Seq)
			}
			if listing.Seller != e.Actor {
				return nil, fmt.Errorf("%w: CANCELED by non-seller at seq %d", ErrCorruptJournal, e.Seq)
			}
			listingOrder = dropListing(listingOrder, *e.TokenID)
			delete(listings, *e.TokenID)

		case domain.EventSale:
			if e.TokenID == nil || e.Amount == nil || e.Counterparty == "" {
				return nil, fmt.Errorf("%w: malformed SALE at seq %d", ErrCorruptJournal, e.Seq)
			}
			listing, ok := listings[*e.TokenID]
			if !ok {
				return nil, fmt.Errorf("%w: SALE for unlisted token %d at seq %d",
					ErrCorruptJournal, *e.TokenID, e.Seq)
			}
			if !listing.Price.Eq(e.Amount) {
				return nil, fmt.Errorf("%w: SALE amount differs from listing price at seq %d",
					ErrCorruptJournal, e.Seq)
			}
			buyer := e.Counterparty
			buyerBalance, ok := balances[buyer]
			if !ok || buyerBalance.Lt(e.Amount) {
				return nil, fmt.Errorf("%w: SALE with unfunded buyer at seq %d",
					ErrCorruptJournal, e.Seq)
			}
			buyerBalance.Sub(buyerBalance, e.Amount)
			credit(balances, listing.Seller, e.Amount)
			tokens[*e.TokenID].Owner = buyer
			listingOrder = dropListing(listingOrder, *e.TokenID)
			delete(listings, *e.TokenID)

		case domain.EventTransfer:
			if e.TokenID == nil || e.Counterparty == "" {
				return nil, fmt.Errorf("%w: malformed TRANSFER at seq %d", ErrCorruptJournal, e.Seq)
			}
			token, ok := tokens[*e.TokenID]
			if !ok {
				return nil, fmt.Errorf("%w: TRANSFER of unknown token %d at seq %d",
					ErrCorruptJournal, *e.TokenID, e.Seq)
			}
			if token.Owner != e.Actor {
				return nil, fmt.Errorf("%w: TRANSFER by non-owner at seq %d", ErrCorruptJournal, e.Seq)
			}
			if _, active := listings[*e.TokenID]; active {
				return nil, fmt.Errorf("%w: TRANSFER of listed token %d at seq %d",
					ErrCorruptJournal, *e.TokenID, e.Seq)
			}
			token.Owner = e.Counterparty

		case domain.EventDeposit:
			if e.Actor == "" || e.Amount == nil || e.Amount.IsZero() {
				return nil, fmt.Errorf("%w: malformed DEPOSIT at seq %d", ErrCorruptJournal, e.Seq)
			}
			credit(balances, e.Actor, e.Amount)

		case domain.EventWithdraw:
			if e.Actor == "" || e.Amount == nil || e.Amount.IsZero() {
				return nil, fmt.Errorf("%w: malformed WITHDRAW at seq %d", ErrCorruptJournal, e.Seq)
			}
			balance, ok := balances[e.Actor]
			if !ok || balance.Lt(e.Amount) {
				return nil, fmt.Errorf("%w: WITHDRAW exceeding balance at seq %d",
					ErrCorruptJournal, e.Seq)
			}
			balance.Sub(balance, e.Amount)

		default:
			return nil, fmt.Errorf("%w: unknown event type %q at seq %d",
				ErrCorruptJournal, e.Type, e.Seq)
		}
	}

	snap := domain.NewSnapshot()
	snap.NextTokenID = nextTokenID
	snap.NextListingID = nextListingID
	snap.NextEventSeq = uint64(len(events))

	ids := make([]uint64, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		snap.Tokens = append(snap.Tokens, tokens[id])
	}
	snap.Listings = listingOrder
	snap.Balances = balances

	return snap, nil
}

// credit adds amount to an account balance, creating the entry if needed.
func credit(balances map[domain.Address]*uint256.Int, account domain.Address, amount *uint256.Int) {
	balance, ok := balances[account]
	if !ok {
		balance = new(uint256.Int)
		balances[account] = balance
	}
	balance.Add(balance, amount)
}

// dropListing removes the active listing for a token from the ordered slice.
func dropListing(order []*domain.Listing, tokenID uint64) []*domain.Listing {
	for i, lst := range order {
		if lst.TokenID == tokenID {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
