package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-market-ledger/internal/accounts"
	"nft-market-ledger/internal/ledger"
)

type testAPI struct {
	t     *testing.T
	srv   *httptest.Server
	alice string
	bob   string
	carol string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	l := ledger.New(ledger.DefaultConfig())
	s := New(l, nil, log.New(io.Discard, "", 0))
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	api := &testAPI{t: t, srv: srv}
	api.alice = api.newAddress()
	api.bob = api.newAddress()
	api.carol = api.newAddress()
	return api
}

func (a *testAPI) newAddress() string {
	addr, err := accounts.Generate()
	require.NoError(a.t, err)
	return string(addr)
}

func (a *testAPI) post(path string, body any) *http.Response {
	a.t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(a.t, err)

	resp, err := http.Post(a.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *testAPI) get(path string) *http.Response {
	a.t.Helper()

	resp, err := http.Get(a.srv.URL + path)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testAPI) mint(caller, locator string) uint64 {
	a.t.Helper()

	resp := a.post("/v1/tokens", mintRequest{Caller: caller, MetadataLocator: locator})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	return decode[mintResponse](a.t, resp).TokenID
}

func (a *testAPI) deposit(account, amount string) {
	a.t.Helper()

	resp := a.post("/v1/deposits", fundingRequest{Account: account, Amount: amount})
	require.Equal(a.t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_MintListBuyFlow(t *testing.T) {
	api := newTestAPI(t)

	tokenID := api.mint(api.alice, "ipfs://QmHash")
	assert.Equal(t, uint64(0), tokenID)

	api.deposit(api.bob, "500")

	resp := api.post("/v1/listings", listRequest{Caller: api.alice, TokenID: tokenID, Price: "150"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, uint64(0), decode[listResponse](t, resp).ListingID)

	resp = api.get("/v1/listings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listings := decode[listingsResponse](t, resp)
	require.Len(t, listings.Listings, 1)
	assert.Equal(t, "150", listings.Listings[0].Price)
	assert.Equal(t, api.alice, listings.Listings[0].Seller)

	// Underpayment settles nothing
	resp = api.post("/v1/purchases", purchaseRequest{Buyer: api.bob, TokenID: tokenID, Payment: "100"})
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_payment", decode[errorResponse](t, resp).Error)

	resp = api.post("/v1/purchases", purchaseRequest{Buyer: api.bob, TokenID: tokenID, Payment: "150"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.get("/v1/tokens/0/owner")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.bob, decode[ownerResponse](t, resp).Owner)

	resp = api.get("/v1/accounts/" + api.bob + "/tokens")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []uint64{0}, decode[accountTokensResponse](t, resp).TokenIDs)

	resp = api.get("/v1/accounts/" + api.alice + "/balance")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "150", decode[balanceResponse](t, resp).Balance)

	// The listing is consumed
	resp = api.get("/v1/listings")
	assert.Empty(t, decode[listingsResponse](t, resp).Listings)
}

func TestAPI_CancelListing(t *testing.T) {
	api := newTestAPI(t)

	tokenID := api.mint(api.alice, "ipfs://QmHash")
	resp := api.post("/v1/listings", listRequest{Caller: api.alice, TokenID: tokenID, Price: "10"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Only the seller may cancel
	resp = api.post("/v1/listings/0/cancel", cancelRequest{Caller: api.bob})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not_seller", decode[errorResponse](t, resp).Error)

	resp = api.post("/v1/listings/0/cancel", cancelRequest{Caller: api.alice})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.post("/v1/listings/0/cancel", cancelRequest{Caller: api.alice})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_listed", decode[errorResponse](t, resp).Error)
}

func TestAPI_Transfer(t *testing.T) {
	api := newTestAPI(t)

	tokenID := api.mint(api.alice, "ipfs://QmHash")

	resp := api.post("/v1/transfers", transferRequest{From: api.bob, To: api.carol, TokenID: tokenID})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not_owner", decode[errorResponse](t, resp).Error)

	resp = api.post("/v1/transfers", transferRequest{From: api.alice, To: api.carol, TokenID: tokenID})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.get("/v1/tokens/0/owner")
	assert.Equal(t, api.carol, decode[ownerResponse](t, resp).Owner)
}

func TestAPI_Withdrawals(t *testing.T) {
	api := newTestAPI(t)

	api.deposit(api.bob, "100")

	resp := api.post("/v1/withdrawals", fundingRequest{Account: api.bob, Amount: "150"})
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_funds", decode[errorResponse](t, resp).Error)

	resp = api.post("/v1/withdrawals", fundingRequest{Account: api.bob, Amount: "60"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.get("/v1/accounts/" + api.bob + "/balance")
	assert.Equal(t, "40", decode[balanceResponse](t, resp).Balance)
}

func TestAPI_Validation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		run  func() *http.Response
		kind string
	}{
		{
			name: "malformed address",
			run: func() *http.Response {
				return api.post("/v1/tokens", mintRequest{Caller: "not-base58!", MetadataLocator: "ipfs://x"})
			},
			kind: "invalid_account",
		},
		{
			name: "empty locator",
			run: func() *http.Response {
				return api.post("/v1/tokens", mintRequest{Caller: api.alice})
			},
			kind: "invalid_locator",
		},
		{
			name: "zero price",
			run: func() *http.Response {
				api.mint(api.alice, "ipfs://x")
				return api.post("/v1/listings", listRequest{Caller: api.alice, TokenID: 0, Price: "0"})
			},
			kind: "invalid_price",
		},
		{
			name: "non-decimal amount",
			run: func() *http.Response {
				return api.post("/v1/deposits", fundingRequest{Account: api.alice, Amount: "12x"})
			},
			kind: "invalid_amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.run()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.kind, decode[errorResponse](t, resp).Error)
		})
	}
}

func TestAPI_UnknownToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/tokens/99/metadata")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_token", decode[errorResponse](t, resp).Error)

	resp = api.get("/v1/tokens/99/owner")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Metadata(t *testing.T) {
	api := newTestAPI(t)

	api.mint(api.alice, "ar://abc123")

	resp := api.get("/v1/tokens/0/metadata")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ar://abc123", decode[metadataResponse](t, resp).MetadataLocator)
}

func TestAPI_SelfPurchaseRejected(t *testing.T) {
	api := newTestAPI(t)

	tokenID := api.mint(api.alice, "ipfs://x")
	api.deposit(api.alice, "100")

	resp := api.post("/v1/listings", listRequest{Caller: api.alice, TokenID: tokenID, Price: "100"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.post("/v1/purchases", purchaseRequest{Buyer: api.alice, TokenID: tokenID, Payment: "100"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "self_purchase", decode[errorResponse](t, resp).Error)
}

func TestAPI_HealthAndStatus(t *testing.T) {
	api := newTestAPI(t)
	api.mint(api.alice, "ipfs://x")

	resp := api.get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.get("/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[statusResponse](t, resp)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, 1, status.Tokens)
	assert.Equal(t, uint64(1), status.NextEventSeq)
}

func TestAPI_ZeroBalanceForUnknownAccount(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/accounts/" + api.carol + "/balance")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", decode[balanceResponse](t, resp).Balance)
}
