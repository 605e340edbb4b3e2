package postgres

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/storage"
)

func sampleSnapshot() *domain.Snapshot {
	snap := domain.NewSnapshot()
	snap.NextTokenID = 3
	snap.NextListingID = 2
	snap.NextEventSeq = 7

	snap.Tokens = []*domain.Token{
		{ID: 0, Owner: "alice", MetadataLocator: "ipfs://QmA", MintedAt: 1000},
		{ID: 1, Owner: "bob", MetadataLocator: "ipfs://QmB", MintedAt: 2000},
		{ID: 2, Owner: "alice", MetadataLocator: "ipfs://QmC", MintedAt: 3000},
	}
	snap.Listings = []*domain.Listing{
		{ListingID: 0, TokenID: 1, Seller: "bob", Price: uint256.NewInt(100), ListedAt: 4000},
		{ListingID: 1, TokenID: 2, Seller: "alice", Price: uint256.NewInt(250), ListedAt: 5000},
	}
	snap.Balances["alice"] = uint256.NewInt(500)
	snap.Balances["bob"] = new(uint256.Int) // zero balances persist too
	return snap
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	snap := sampleSnapshot()
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, snap.NextTokenID, got.NextTokenID)
	assert.Equal(t, snap.NextListingID, got.NextListingID)
	assert.Equal(t, snap.NextEventSeq, got.NextEventSeq)
	assert.Equal(t, snap.Tokens, got.Tokens)
	assert.Equal(t, snap.Listings, got.Listings)
	assert.Equal(t, snap.Balances, got.Balances)
}

func TestSnapshotStore_LoadEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_SaveReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	// Second checkpoint: token 1 sold to alice, listing 0 gone.
	second := sampleSnapshot()
	second.Tokens[1].Owner = "alice"
	second.Listings = second.Listings[1:]
	second.Balances["alice"] = uint256.NewInt(400)
	second.Balances["bob"] = uint256.NewInt(100)
	second.NextEventSeq = 8
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, second.Tokens, got.Tokens)
	require.Len(t, got.Listings, 1)
	assert.Equal(t, uint64(1), got.Listings[0].ListingID)
	assert.Equal(t, second.Balances, got.Balances)
	assert.Equal(t, uint64(8), got.NextEventSeq)
}

func TestSnapshotStore_ReplacesCheckpointWithActiveListings(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	// Every checkpoint here carries listing rows referencing token rows,
	// so each save has to clear the old checkpoint in dependency order
	// before the token deletes can pass the foreign key.
	require.NoError(t, store.Save(ctx, sampleSnapshot()))
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	third := sampleSnapshot()
	third.NextEventSeq = 9
	require.NoError(t, store.Save(ctx, third))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.NextEventSeq)
	assert.Len(t, got.Listings, 2)
}

func TestSnapshotStore_LargePrice(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	// 2^255, well past int64/numeric(38) territory
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 255)

	snap := domain.NewSnapshot()
	snap.NextTokenID = 1
	snap.NextListingID = 1
	snap.Tokens = []*domain.Token{
		{ID: 0, Owner: "alice", MetadataLocator: "ipfs://QmA", MintedAt: 1},
	}
	snap.Listings = []*domain.Listing{
		{ListingID: 0, TokenID: 0, Seller: "alice", Price: big, ListedAt: 2},
	}
	snap.Balances["alice"] = new(uint256.Int).Set(big)

	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, big, got.Listings[0].Price)
	assert.Equal(t, big, got.Balances["alice"])
}
