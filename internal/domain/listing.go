package domain

import "github.com/holiman/uint256"

// Listing is a fixed-price sale offer for a token.
// At most one active listing exists per token at any time; the listing
// references the token by id, never the other way around.
// Corresponds to the listings table.
type Listing struct {
	ListingID uint64       // monotonically increasing per list call
	TokenID   uint64       // the token on offer
	Seller    Address      // token owner at listing time
	Price     *uint256.Int // native units, strictly positive
	ListedAt  int64        // listing timestamp (ms)
}
