// Package server exposes the ledger over a JSON HTTP API plus the
// WebSocket event feed, health, status, and metrics endpoints.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"nft-market-ledger/internal/accounts"
	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/ledger"
	"nft-market-ledger/internal/observability"
)

// Server routes HTTP requests to the ledger. The feed handler is injected
// so the hub's lifecycle stays with main.
type Server struct {
	ledger    *ledger.Ledger
	feed      http.Handler
	logger    *log.Logger
	startedAt time.Time
}

// New creates a server around a ledger. feed may be nil; the endpoint then
// responds 404.
func New(l *ledger.Ledger, feed http.Handler, logger *log.Logger) *Server {
	return &Server{
		ledger:    l,
		feed:      feed,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Routes builds the ServeMux with all API endpoints mounted.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/tokens", s.instrument("mint", s.handleMint))
	mux.HandleFunc("POST /v1/listings", s.instrument("list", s.handleList))
	mux.HandleFunc("POST /v1/listings/{tokenID}/cancel", s.instrument("cancel", s.handleCancel))
	mux.HandleFunc("POST /v1/purchases", s.instrument("buy", s.handleBuy))
	mux.HandleFunc("POST /v1/transfers", s.instrument("transfer", s.handleTransfer))
	mux.HandleFunc("POST /v1/deposits", s.instrument("deposit", s.handleDeposit))
	mux.HandleFunc("POST /v1/withdrawals", s.instrument("withdraw", s.handleWithdraw))

	mux.HandleFunc("GET /v1/listings", s.instrument("listings", s.handleListings))
	mux.HandleFunc("GET /v1/accounts/{address}/tokens", s.instrument("account_tokens", s.handleAccountTokens))
	mux.HandleFunc("GET /v1/accounts/{address}/balance", s.instrument("account_balance", s.handleAccountBalance))
	mux.HandleFunc("GET /v1/tokens/{tokenID}/metadata", s.instrument("token_metadata", s.handleTokenMetadata))
	mux.HandleFunc("GET /v1/tokens/{tokenID}/owner", s.instrument("token_owner", s.handleTokenOwner))

	if s.feed != nil {
		mux.Handle("GET /v1/feed", s.feed)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

// instrument wraps a handler with request metrics for one route.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.RecordHTTPRequest(route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}

	id, err := s.withMetrics("mint", func() (uint64, error) {
		return s.ledger.MintToken(caller, req.MetadataLocator)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.RecordMint()
	s.writeJSON(w, http.StatusCreated, mintResponse{TokenID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		s.writeError(w, ledger.ErrInvalidPrice)
		return
	}

	id, err := s.withMetrics("list", func() (uint64, error) {
		return s.ledger.ListToken(caller, req.TokenID, price)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.SetActiveListings(len(s.ledger.ListedTokens()))
	s.writeJSON(w, http.StatusCreated, listResponse{ListingID: id})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := s.pathID(w, r, "tokenID")
	if !ok {
		return
	}
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}

	_, err := s.withMetrics("cancel", func() (uint64, error) {
		return 0, s.ledger.CancelListing(caller, tokenID)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.SetActiveListings(len(s.ledger.ListedTokens()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	buyer, ok := s.address(w, req.Buyer)
	if !ok {
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		s.writeError(w, ledger.ErrInsufficientPayment)
		return
	}

	_, err = s.withMetrics("buy", func() (uint64, error) {
		return 0, s.ledger.BuyToken(buyer, req.TokenID, payment)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.RecordSale()
	observability.SetActiveListings(len(s.ledger.ListedTokens()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	from, ok := s.address(w, req.From)
	if !ok {
		return
	}
	to, ok := s.address(w, req.To)
	if !ok {
		return
	}

	_, err := s.withMetrics("transfer", func() (uint64, error) {
		return 0, s.ledger.TransferToken(from, to, req.TokenID)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleFunding(w, r, "deposit", s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleFunding(w, r, "withdraw", s.ledger.Withdraw)
}

func (s *Server) handleFunding(w http.ResponseWriter, r *http.Request, op string,
	apply func(domain.Address, *uint256.Int) error) {

	var req fundingRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, ok := s.address(w, req.Account)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, ledger.ErrInvalidAmount)
		return
	}

	_, err = s.withMetrics(op, func() (uint64, error) {
		return 0, apply(account, amount)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	listings := s.ledger.ListedTokens()

	resp := listingsResponse{Listings: make([]listingDTO, 0, len(listings))}
	for _, l := range listings {
		resp.Listings = append(resp.Listings, listingDTO{
			ListingID: l.ListingID,
			TokenID:   l.TokenID,
			Seller:    string(l.Seller),
			Price:     l.Price.Dec(),
			ListedAt:  l.ListedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccountTokens(w http.ResponseWriter, r *http.Request) {
	address, ok := s.address(w, r.PathValue("address"))
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, accountTokensResponse{
		Address:  string(address),
		TokenIDs: s.ledger.TokensOf(address),
	})
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	address, ok := s.address(w, r.PathValue("address"))
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{
		Address: string(address),
		Balance: s.ledger.BalanceOf(address).Dec(),
	})
}

func (s *Server) handleTokenMetadata(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := s.pathID(w, r, "tokenID")
	if !ok {
		return
	}
	locator, err := s.ledger.MetadataLocator(tokenID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, metadataResponse{TokenID: tokenID, MetadataLocator: locator})
}

func (s *Server) handleTokenOwner(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := s.pathID(w, r, "tokenID")
	if !ok {
		return
	}
	owner, err := s.ledger.OwnerOf(tokenID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ownerResponse{TokenID: tokenID, Owner: string(owner)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:         "running",
		Uptime:         time.Since(s.startedAt).String(),
		Tokens:         len(snap.Tokens),
		ActiveListings: len(snap.Listings),
		NextEventSeq:   snap.NextEventSeq,
	})
}

// withMetrics runs one ledger operation and records its outcome and latency.
func (s *Server) withMetrics(op string, call func() (uint64, error)) (uint64, error) {
	start := time.Now()
	id, err := call()
	observability.RecordOperation(op, err, time.Since(start).Seconds())
	return id, err
}

// decode reads the JSON request body; on failure it responds 400 itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: "malformed JSON body",
		})
		return false
	}
	return true
}

// address validates an account address at the API boundary; on failure it
// responds 400 itself.
func (s *Server) address(w http.ResponseWriter, raw string) (domain.Address, bool) {
	addr := domain.Address(raw)
	if err := accounts.Validate(addr); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_account",
			Message: "invalid account address: " + err.Error(),
		})
		return "", false
	}
	return addr, true
}

// pathID parses a uint64 path segment; on failure it responds 400 itself.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: "invalid " + name,
		})
		return 0, false
	}
	return id, true
}

// parseAmount parses a decimal-string amount.
func parseAmount(raw string) (*uint256.Int, error) {
	if raw == "" {
		return nil, errors.New("empty amount")
	}
	return uint256.FromDecimal(raw)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

// writeError maps a ledger error to its HTTP status and error kind.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, kind := http.StatusInternalServerError, "internal"

	switch {
	case errors.Is(err, ledger.ErrUnknownToken):
		code, kind = http.StatusNotFound, "unknown_token"
	case errors.Is(err, ledger.ErrNotListed):
		code, kind = http.StatusNotFound, "not_listed"
	case errors.Is(err, ledger.ErrNotOwner):
		code, kind = http.StatusForbidden, "not_owner"
	case errors.Is(err, ledger.ErrNotSeller):
		code, kind = http.StatusForbidden, "not_seller"
	case errors.Is(err, ledger.ErrAlreadyListed):
		code, kind = http.StatusConflict, "already_listed"
	case errors.Is(err, ledger.ErrSelfPurchase):
		code, kind = http.StatusConflict, "self_purchase"
	case errors.Is(err, ledger.ErrInsufficientPayment):
		code, kind = http.StatusPaymentRequired, "insufficient_payment"
	case errors.Is(err, ledger.ErrOverPayment):
		code, kind = http.StatusPaymentRequired, "over_payment"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		code, kind = http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, ledger.ErrInvalidPrice):
		code, kind = http.StatusBadRequest, "invalid_price"
	case errors.Is(err, ledger.ErrInvalidAmount):
		code, kind = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInvalidLocator):
		code, kind = http.StatusBadRequest, "invalid_locator"
	case errors.Is(err, ledger.ErrInvalidAccount):
		code, kind = http.StatusBadRequest, "invalid_account"
	}

	s.writeJSON(w, code, errorResponse{Error: kind, Message: err.Error()})
}
