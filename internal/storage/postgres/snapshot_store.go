package postgres

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Save replaces the whole checkpoint inside one transaction, so readers
// never observe a half-written snapshot.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save atomically replaces the persisted checkpoint with snap.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// listings references tokens, so it must be cleared first or the
	// tokens delete trips the foreign key.
	for _, table := range []string{"listings", "tokens", "balances", "ledger_counters"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, t := range snap.Tokens {
		_, err := tx.Exec(ctx, `
			INSERT INTO tokens (token_id, owner, metadata_locator, minted_at)
			VALUES ($1, $2, $3, $4)
		`, int64(t.ID), string(t.Owner), t.MetadataLocator, t.MintedAt)
		if err != nil {
			return fmt.Errorf("insert token %d: %w", t.ID, err)
		}
	}

	for _, l := range snap.Listings {
		_, err := tx.Exec(ctx, `
			INSERT INTO listings (listing_id, token_id, seller, price, listed_at)
			VALUES ($1, $2, $3, $4::numeric, $5)
		`, int64(l.ListingID), int64(l.TokenID), string(l.Seller), l.Price.Dec(), l.ListedAt)
		if err != nil {
			return fmt.Errorf("insert listing %d: %w", l.ListingID, err)
		}
	}

	for account, balance := range snap.Balances {
		_, err := tx.Exec(ctx, `
			INSERT INTO balances (account, balance)
			VALUES ($1, $2::numeric)
		`, string(account), balance.Dec())
		if err != nil {
			return fmt.Errorf("insert balance for %s: %w", account, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_counters (id, next_token_id, next_listing_id, next_event_seq)
		VALUES (1, $1, $2, $3)
	`, int64(snap.NextTokenID), int64(snap.NextListingID), int64(snap.NextEventSeq))
	if err != nil {
		return fmt.Errorf("insert counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// Load returns the latest persisted checkpoint.
// Returns ErrNotFound when no checkpoint has been saved yet.
func (s *SnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	var nextTokenID, nextListingID, nextEventSeq int64
	err := s.pool.QueryRow(ctx, `
		SELECT next_token_id, next_listing_id, next_event_seq
		FROM ledger_counters
		WHERE id = 1
	`).Scan(&nextTokenID, &nextListingID, &nextEventSeq)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load counters: %w", err)
	}
	snap.NextTokenID = uint64(nextTokenID)
	snap.NextListingID = uint64(nextListingID)
	snap.NextEventSeq = uint64(nextEventSeq)

	rows, err := s.pool.Query(ctx, `
		SELECT token_id, owner, metadata_locator, minted_at
		FROM tokens
		ORDER BY token_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Token
		var id int64
		var owner string
		if err := rows.Scan(&id, &owner, &t.MetadataLocator, &t.MintedAt); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		t.ID = uint64(id)
		t.Owner = domain.Address(owner)
		snap.Tokens = append(snap.Tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}

	listingRows, err := s.pool.Query(ctx, `
		SELECT listing_id, token_id, seller, price::text, listed_at
		FROM listings
		ORDER BY listing_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer listingRows.Close()

	for listingRows.Next() {
		var l domain.Listing
		var listingID, tokenID int64
		var seller, price string
		if err := listingRows.Scan(&listingID, &tokenID, &seller, &price, &l.ListedAt); err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		l.ListingID = uint64(listingID)
		l.TokenID = uint64(tokenID)
		l.Seller = domain.Address(seller)
		l.Price, err = uint256.FromDecimal(price)
		if err != nil {
			return nil, fmt.Errorf("parse listing price %q: %w", price, err)
		}
		snap.Listings = append(snap.Listings, &l)
	}
	if err := listingRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing rows: %w", err)
	}

	balanceRows, err := s.pool.Query(ctx, `
		SELECT account, balance::text
		FROM balances
	`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var account, balance string
		if err := balanceRows.Scan(&account, &balance); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		b, err := uint256.FromDecimal(balance)
		if err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", balance, err)
		}
		snap.Balances[domain.Address(account)] = b
	}
	if err := balanceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}

	return snap, nil
}
