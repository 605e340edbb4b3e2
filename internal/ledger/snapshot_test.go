package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-market-ledger/internal/domain"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	l := New(DefaultConfig())

	id0, err := l.MintToken(alice, "ipfs://QmA")
	require.NoError(t, err)
	id1, err := l.MintToken(bob, "ipfs://QmB")
	require.NoError(t, err)
	_, err = l.ListToken(alice, id0, u(100))
	require.NoError(t, err)
	require.NoError(t, l.Deposit(carol, u(500)))

	snap := l.Snapshot()
	restored := NewFromSnapshot(DefaultConfig(), snap)

	assert.Equal(t, snap, restored.Snapshot(), "restore must reproduce the exact state")

	// Counters continue where the source left off.
	id2, err := restored.MintToken(carol, "ipfs://QmC")
	require.NoError(t, err)
	assert.Equal(t, id1+1, id2)

	// The restored listing is live: carol can buy it.
	require.NoError(t, restored.BuyToken(carol, id0, u(100)))
	owner, err := restored.OwnerOf(id0)
	require.NoError(t, err)
	assert.Equal(t, carol, owner)
	assert.Equal(t, u(100), restored.BalanceOf(alice))
}

func TestSnapshot_IsolatedFromLedger(t *testing.T) {
	l := New(DefaultConfig())
	id, err := l.MintToken(alice, "ipfs://QmA")
	require.NoError(t, err)
	_, err = l.ListToken(alice, id, u(100))
	require.NoError(t, err)
	require.NoError(t, l.Deposit(bob, u(50)))

	snap := l.Snapshot()
	snap.Tokens[0].Owner = carol
	snap.Listings[0].Price.SetUint64(1)
	snap.Balances[bob].SetUint64(0)
	snap.NextTokenID = 99

	owner, err := l.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	assert.Equal(t, u(100), l.ListedTokens()[0].Price)
	assert.Equal(t, u(50), l.BalanceOf(bob))

	next, err := l.MintToken(alice, "ipfs://QmB")
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestSnapshot_RestoreIsolatedFromSource(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.NextTokenID = 1
	snap.Tokens = []*domain.Token{
		{ID: 0, Owner: alice, MetadataLocator: "ipfs://QmA", MintedAt: 1},
	}

	restored := NewFromSnapshot(DefaultConfig(), snap)

	// Mutating the source snapshot after restore must not leak through.
	snap.Tokens[0].Owner = bob

	owner, err := restored.OwnerOf(0)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
}

func TestSnapshot_EmptyLedger(t *testing.T) {
	l := New(DefaultConfig())
	snap := l.Snapshot()

	assert.Equal(t, uint64(0), snap.NextTokenID)
	assert.Equal(t, uint64(0), snap.NextListingID)
	assert.Equal(t, uint64(0), snap.NextEventSeq)
	assert.Empty(t, snap.Tokens)
	assert.Empty(t, snap.Listings)
	assert.Empty(t, snap.Balances)
}
