package server

// Request and response shapes for the JSON API. All amounts travel as
// decimal strings so 256-bit values never touch JSON float handling.

type mintRequest struct {
	Caller          string `json:"caller"`
	MetadataLocator string `json:"metadata_locator"`
}

type mintResponse struct {
	TokenID uint64 `json:"token_id"`
}

type listRequest struct {
	Caller  string `json:"caller"`
	TokenID uint64 `json:"token_id"`
	Price   string `json:"price"`
}

type listResponse struct {
	ListingID uint64 `json:"listing_id"`
}

type cancelRequest struct {
	Caller string `json:"caller"`
}

type purchaseRequest struct {
	Buyer   string `json:"buyer"`
	TokenID uint64 `json:"token_id"`
	Payment string `json:"payment"`
}

type transferRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID uint64 `json:"token_id"`
}

type fundingRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type listingDTO struct {
	ListingID uint64 `json:"listing_id"`
	TokenID   uint64 `json:"token_id"`
	Seller    string `json:"seller"`
	Price     string `json:"price"`
	ListedAt  int64  `json:"listed_at"`
}

type listingsResponse struct {
	Listings []listingDTO `json:"listings"`
}

type accountTokensResponse struct {
	Address  string   `json:"address"`
	TokenIDs []uint64 `json:"token_ids"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type metadataResponse struct {
	TokenID         uint64 `json:"token_id"`
	MetadataLocator string `json:"metadata_locator"`
}

type ownerResponse struct {
	TokenID uint64 `json:"token_id"`
	Owner   string `json:"owner"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Tokens         int    `json:"tokens"`
	ActiveListings int    `json:"active_listings"`
	NextEventSeq   uint64 `json:"next_event_seq"`
}
