// Package ledger implements the marketplace state machine: token identity,
// ownership, listings, and native-unit balances, with atomic
// payment-for-asset settlement.
//
// The ledger is a single consistency domain. Every operation runs under one
// mutex, validates all preconditions before touching state, and either fully
// commits or leaves state untouched. One event is emitted per successful
// mutating call, in commit order; none on failure.
package ledger

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/idhash"
	"nft-market-ledger/internal/observability"
)

// EventSink receives committed ledger events in commit order. Sinks are
// invoked synchronously under the ledger lock and must not block; anything
// slow (journal writes, fan-out) belongs behind a buffered channel.
type EventSink interface {
	Publish(e *domain.Event)
}

// Ledger owns the token table, the listing table, and account balances.
// All exported methods are safe for concurrent use; calls are strictly
// serialized so no caller ever observes an intermediate state.
type Ledger struct {
	mu    sync.Mutex
	cfg   Config
	sinks []EventSink
	now   func() int64 // ms timestamp source, replaceable in tests

	nextTokenID   uint64
	nextListingID uint64
	nextEventSeq  uint64

	tokens       map[uint64]*domain.Token
	byToken      map[uint64]*domain.Listing // active listing per token
	listingOrder []*domain.Listing          // active listings, creation order
	balances     map[domain.Address]*uint256.Int
}

// New creates an empty ledger: no tokens, no listings, counters at zero.
func New(cfg Config, sinks ...EventSink) *Ledger {
	return &Ledger{
		cfg:      cfg,
		sinks:    sinks,
		now:      func() int64 { return time.Now().UnixMilli() },
		tokens:   make(map[uint64]*domain.Token),
		byToken:  make(map[uint64]*domain.Listing),
		balances: make(map[domain.Address]*uint256.Int),
	}
}

// NewFromSnapshot creates a ledger initialized from a previously taken
// snapshot. The snapshot is copied; the caller may keep mutating it.
func NewFromSnapshot(cfg Config, snap *domain.Snapshot, sinks ...EventSink) *Ledger {
	l := New(cfg, sinks...)
	s := snap.Clone()

	l.nextTokenID = s.NextTokenID
	l.nextListingID = s.NextListingID
	l.nextEventSeq = s.NextEventSeq

	for _, t := range s.Tokens {
		l.tokens[t.ID] = t
	}
	for _, lst := range s.Listings {
		l.byToken[lst.TokenID] = lst
		l.listingOrder = append(l.listingOrder, lst)
	}
	l.balances = s.Balances

	return l
}

// WithClock replaces the timestamp source. Test hook.
func (l *Ledger) WithClock(now func() int64) *Ledger {
	l.now = now
	return l
}

// MintToken allocates the next sequential token id, assigns ownership to
// caller, and stores the metadata locator immutably. Ids are dense and
// strictly increasing from 0.
func (l *Ledger) MintToken(caller domain.Address, metadataLocator string) (uint64, error) {
	if caller == "" {
		return 0, ErrInvalidAccount
	}
	if metadataLocator == "" {
		return 0, ErrInvalidLocator
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextTokenID
	ts := l.now()
	l.tokens[id] = &domain.Token{
		ID:              id,
		Owner:           caller,
		MetadataLocator: metadataLocator,
		MintedAt:        ts,
	}
	l.nextTokenID++

	l.emit(&domain.Event{
		Type:      domain.EventMint,
		TokenID:   &id,
		Actor:     caller,
		Locator:   metadataLocator,
		EmittedAt: ts,
	})
	return id, nil
}

// ListToken puts a token up for sale at a fixed positive price. The caller
// must own the token and the token must not already be listed.
func (l *Ledger) ListToken(caller domain.Address, tokenID uint64, price *uint256.Int) (uint64, error) {
	if caller == "" {
		return 0, ErrInvalidAccount
	}
	if price == nil || price.IsZero() {
		return 0, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	token, ok := l.tokens[tokenID]
	if !ok {
		return 0, ErrUnknownToken
	}
	if token.Owner != caller {
		return 0, ErrNotOwner
	}
	if _, listed := l.byToken[tokenID]; listed {
		return 0, ErrAlreadyListed
	}

	id := l.nextListingID
	ts := l.now()
	listing := &domain.Listing{
		ListingID: id,
		TokenID:   tokenID,
		Seller:    caller,
		Price:     new(uint256.Int).Set(price),
		ListedAt:  ts,
	}
	l.byToken[tokenID] = listing
	l.listingOrder = append(l.listingOrder, listing)
	l.nextListingID++

	l.emit(&domain.Event{
		Type:      domain.EventListed,
		TokenID:   &tokenID,
		ListingID: &id,
		Actor:     caller,
		Amount:    new(uint256.Int).Set(price),
		EmittedAt: ts,
	})
	return id, nil
}

// CancelListing withdraws an active listing. Only the seller may cancel.
// Ownership is untouched.
func (l *Ledger) CancelListing(caller domain.Address, tokenID uint64) error {
	if caller == "" {
		return ErrInvalidAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	listing, ok := l.byToken[tokenID]
	if !ok {
		return ErrNotListed
	}
	if listing.Seller != caller {
		return ErrNotSeller
	}

	l.removeListing(tokenID)

	listingID := listing.ListingID
	l.emit(&domain.Event{
		Type:      domain.EventCanceled,
		TokenID:   &tokenID,
		ListingID: &listingID,
		Actor:     listing.Seller,
		EmittedAt: l.now(),
	})
	return nil
}

// BuyToken settles an active listing: payment moves from caller to seller,
// ownership moves to caller, and the listing is consumed — all or nothing.
// The payment must equal the listing price exactly; underpayment and
// overpayment are both rejected.
func (l *Ledger) BuyToken(caller domain.Address, tokenID uint64, payment *uint256.Int) error {
	if caller == "" {
		return ErrInvalidAccount
	}
	if payment == nil {
		return ErrInsufficientPayment
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	listing, ok := l.byToken[tokenID]
	if !ok {
		return ErrNotListed
	}
	switch payment.Cmp(listing.Price) {
	case -1:
		return ErrInsufficientPayment
	case 1:
		return ErrOverPayment
	}
	if caller == listing.Seller && !l.cfg.AllowSelfPurchase {
		return ErrSelfPurchase
	}

	buyerBalance, ok := l.balances[caller]
	if !ok || buyerBalance.Lt(payment) {
		return ErrInsufficientFunds
	}

	// All preconditions hold; commit every sub-step together.
	buyerBalance.Sub(buyerBalance, payment)
	sellerBalance, ok := l.balances[listing.Seller]
	if !ok {
		sellerBalance = new(uint256.Int)
		l.balances[listing.Seller] = sellerBalance
	}
	sellerBalance.Add(sellerBalance, payment)

	l.tokens[tokenID].Owner = caller
	l.removeListing(tokenID)

	listingID := listing.ListingID
	l.emit(&domain.Event{
		Type:         domain.EventSale,
		TokenID:      &tokenID,
		ListingID:    &listingID,
		Actor:        listing.Seller,
		Counterparty: caller,
		Amount:       new(uint256.Int).Set(listing.Price),
		EmittedAt:    l.now(),
	})
	return nil
}

// TransferToken moves ownership without payment. The caller must own the
// token, and the token must not be listed: transfers never bypass an active
// listing, so listings can never be orphaned by an ownership change.
func (l *Ledger) TransferToken(caller, to domain.Address, tokenID uint64) error {
	if caller == "" || to == "" {
		return ErrInvalidAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	token, ok := l.tokens[tokenID]
	if !ok {
		return ErrUnknownToken
	}
	if token.Owner != caller {
		return ErrNotOwner
	}
	if _, listed := l.byToken[tokenID]; listed {
		return ErrAlreadyListed
	}

	token.Owner = to

	l.emit(&domain.Event{
		Type:         domain.EventTransfer,
		TokenID:      &tokenID,
		Actor:        caller,
		Counterparty: to,
		EmittedAt:    l.now(),
	})
	return nil
}

// Deposit credits an account with native units.
func (l *Ledger) Deposit(account domain.Address, amount *uint256.Int) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		balance = new(uint256.Int)
		l.balances[account] = balance
	}
	balance.Add(balance, amount)

	l.emit(&domain.Event{
		Type:      domain.EventDeposit,
		Actor:     account,
		Amount:    new(uint256.Int).Set(amount),
		EmittedAt: l.now(),
	})
	return nil
}

// Withdraw debits an account. Fails with ErrInsufficientFunds when the
// balance cannot cover the amount.
func (l *Ledger) Withdraw(account domain.Address, amount *uint256.Int) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok || balance.Lt(amount) {
		return ErrInsufficientFunds
	}
	balance.Sub(balance, amount)

	l.emit(&domain.Event{
		Type:      domain.EventWithdraw,
		Actor:     account,
		Amount:    new(uint256.Int).Set(amount),
		EmittedAt: l.now(),
	})
	return nil
}

// ListedTokens returns all active listings in creation order. The result is
// a copy reflecting state at call time.
func (l *Ledger) ListedTokens() []*domain.Listing {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*domain.Listing, 0, len(l.listingOrder))
	for _, lst := range l.listingOrder {
		listingCopy := *lst
		listingCopy.Price = new(uint256.Int).Set(lst.Price)
		out = append(out, &listingCopy)
	}
	return out
}

// TokensOf returns the ids of all tokens owned by account, ascending.
func (l *Ledger) TokensOf(account domain.Address) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]uint64, 0)
	for id, t := range l.tokens {
		if t.Owner == account {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MetadataLocator returns the locator stored at mint time.
func (l *Ledger) MetadataLocator(tokenID uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token, ok := l.tokens[tokenID]
	if !ok {
		return "", ErrUnknownToken
	}
	return token.MetadataLocator, nil
}

// OwnerOf returns the current holder of a token.
func (l *Ledger) OwnerOf(tokenID uint64) (domain.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token, ok := l.tokens[tokenID]
	if !ok {
		return "", ErrUnknownToken
	}
	return token.Owner, nil
}

// BalanceOf returns the account balance. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(account domain.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(balance)
}

// Snapshot returns a deep copy of the full ledger state, suitable for
// persistence and replay verification.
func (l *Ledger) Snapshot() *domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := domain.NewSnapshot()
	snap.NextTokenID = l.nextTokenID
	snap.NextListingID = l.nextListingID
	snap.NextEventSeq = l.nextEventSeq

	ids := make([]uint64, 0, len(l.tokens))
	for id := range l.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		tokenCopy := *l.tokens[id]
		snap.Tokens = append(snap.Tokens, &tokenCopy)
	}

	for _, lst := range l.listingOrder {
		listingCopy := *lst
		listingCopy.Price = new(uint256.Int).Set(lst.Price)
		snap.Listings = append(snap.Listings, &listingCopy)
	}

	for addr, bal := range l.balances {
		snap.Balances[addr] = new(uint256.Int).Set(bal)
	}

	return snap
}

// removeListing drops the active listing for a token. Caller holds l.mu.
func (l *Ledger) removeListing(tokenID uint64) {
	delete(l.byToken, tokenID)
	for i, lst := range l.listingOrder {
		if lst.TokenID == tokenID {
			l.listingOrder = append(l.listingOrder[:i], l.listingOrder[i+1:]...)
			return
		}
	}
}

// emit assigns the sequence number and event id, then publishes to every
// sink in registration order. Caller holds l.mu, so sinks observe events
// in commit order.
func (l *Ledger) emit(e *domain.Event) {
	e.Seq = l.nextEventSeq
	l.nextEventSeq++

	token := ""
	if e.TokenID != nil {
		token = strconv.FormatUint(*e.TokenID, 10)
	}
	amount := ""
	if e.Amount != nil {
		amount = e.Amount.Dec()
	}
	e.EventID = idhash.ComputeEventID(
		e.Seq,
		string(e.Type),
		token,
		string(e.Actor),
		string(e.Counterparty),
		amount,
	)

	observability.RecordEventEmitted(string(e.Type))
	for _, sink := range l.sinks {
		sink.Publish(e)
	}
}
