package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
	"github.com/etherindex/basketd/internal/engine"
)

// FundService defines the methods that the fund handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type FundService interface {
	CreateFund(ctx context.Context, creator common.Address, name, ticker string, assets []common.Address, weights []uint8) (*engine.Fund, error)
	Deposit(ctx context.Context, fund, holder common.Address, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, fund, holder common.Address, shares *big.Int) (*big.Int, error)
	SetProportions(ctx context.Context, fund, caller common.Address, assets []common.Address, weights []uint8) error
	ListFunds(ctx context.Context, offset, limit int) ([]domain.FundSummary, int, error)
	ListCreatorFunds(ctx context.Context, creator common.Address) ([]domain.FundSummary, error)
	IndexedFund(ctx context.Context, addr common.Address) (domain.FundSummary, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
	Value(ctx context.Context, addr common.Address) (*big.Int, error)
	Snapshot(ctx context.Context, addr common.Address) (domain.FundSnapshot, error)
}

// FundHandler serves fund-related HTTP endpoints.
type FundHandler struct {
	funds  FundService
	logger *slog.Logger
}

// NewFundHandler creates a FundHandler with the given service and logger.
func NewFundHandler(funds FundService, logger *slog.Logger) *FundHandler {
	return &FundHandler{
		funds:  funds,
		logger: logger,
	}
}

// fundSummary is the compact list-view representation of a fund. Index-only
// entries (funds created by an earlier process) omit the live-state fields.
type fundSummary struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	Ticker      string   `json:"ticker"`
	Creator     string   `json:"creator"`
	Assets      []string `json:"assets"`
	Weights     []uint8  `json:"weights,omitempty"`
	ShareSupply string   `json:"share_supply,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	Live        bool     `json:"live"`
}

func summaryView(sum domain.FundSummary) fundSummary {
	hexAssets := make([]string, len(sum.Assets))
	for i, a := range sum.Assets {
		hexAssets[i] = a.Hex()
	}
	out := fundSummary{
		Address: sum.Address.Hex(),
		Name:    sum.Name,
		Ticker:  sum.Ticker,
		Creator: sum.Creator.Hex(),
		Assets:  hexAssets,
		Weights: sum.Weights,
		Live:    sum.Live,
	}
	if sum.ShareSupply != nil {
		out.ShareSupply = sum.ShareSupply.String()
	}
	if !sum.CreatedAt.IsZero() {
		out.CreatedAt = sum.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func summarize(f *engine.Fund) fundSummary {
	assets := f.UnderlyingTokens()
	hexAssets := make([]string, len(assets))
	weights := make([]uint8, len(assets))
	for i, a := range assets {
		hexAssets[i] = a.Hex()
		weights[i] = f.TargetProportion(a)
	}
	return fundSummary{
		Address:     f.Address().Hex(),
		Name:        f.Name(),
		Ticker:      f.Ticker(),
		Creator:     f.Creator().Hex(),
		Assets:      hexAssets,
		Weights:     weights,
		ShareSupply: f.ShareSupply().String(),
		Live:        true,
	}
}

// holdingView is one underlying position in the snapshot response.
type holdingView struct {
	Asset     string `json:"asset"`
	Balance   string `json:"balance"`
	Weight    uint8  `json:"weight"`
	BaseValue string `json:"base_value"`
}

// snapshotResponse is the detailed single-fund view.
type snapshotResponse struct {
	Address     string        `json:"address"`
	Name        string        `json:"name"`
	Ticker      string        `json:"ticker"`
	Creator     string        `json:"creator"`
	ShareSupply string        `json:"share_supply"`
	TotalValue  string        `json:"total_value"`
	Holdings    []holdingView `json:"holdings"`
	TakenAt     string        `json:"taken_at"`
}

func snapshotView(snap domain.FundSnapshot) snapshotResponse {
	holdings := make([]holdingView, len(snap.Holdings))
	for i, h := range snap.Holdings {
		holdings[i] = holdingView{
			Asset:     h.Asset.Hex(),
			Balance:   h.Balance.String(),
			Weight:    h.Weight,
			BaseValue: h.BaseValue.String(),
		}
	}
	return snapshotResponse{
		Address:     snap.Address.Hex(),
		Name:        snap.Name,
		Ticker:      snap.Ticker,
		Creator:     snap.Creator.Hex(),
		ShareSupply: snap.ShareSupply.String(),
		TotalValue:  snap.TotalValue.String(),
		Holdings:    holdings,
		TakenAt:     snap.TakenAt.UTC().Format(time.RFC3339),
	}
}

// listFundsResponse wraps the list endpoint output with metadata.
type listFundsResponse struct {
	Funds  []fundSummary `json:"funds"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListFunds returns created funds with pagination, read from the persistent
// fund index when one is configured.
// GET /api/funds?limit=50&offset=0
func (h *FundHandler) ListFunds(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	sums, total, err := h.funds.ListFunds(r.Context(), opts.Offset, opts.Limit)
	if err != nil {
		h.writeFailure(w, r, "list funds", common.Address{}, err)
		return
	}
	summaries := make([]fundSummary, len(sums))
	for i, sum := range sums {
		summaries[i] = summaryView(sum)
	}

	writeJSON(w, http.StatusOK, listFundsResponse{
		Funds:  summaries,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetFund returns a consistent snapshot of a single fund, priced at current
// oracle quotes.
// GET /api/funds/{address}
func (h *FundHandler) GetFund(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddr(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fund address")
		return
	}

	snap, err := h.funds.Snapshot(r.Context(), addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Funds created by an earlier process live only in the index;
			// serve their metadata instead of a 404.
			sum, idxErr := h.funds.IndexedFund(r.Context(), addr)
			if idxErr != nil {
				if errors.Is(idxErr, domain.ErrNotFound) {
					writeError(w, http.StatusNotFound, "fund not found")
					return
				}
				h.writeFailure(w, r, "get fund", addr, idxErr)
				return
			}
			writeJSON(w, http.StatusOK, summaryView(sum))
			return
		}
		h.writeFailure(w, r, "get fund", addr, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotView(snap))
}

// GetValue returns a fund's total value in base-asset terms.
// GET /api/funds/{address}/value
func (h *FundHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddr(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fund address")
		return
	}

	value, err := h.funds.Value(r.Context(), addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "fund not found")
			return
		}
		h.writeFailure(w, r, "get value", addr, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.Hex(),
		"value":   value.String(),
	})
}

// createFundRequest is the JSON body for fund creation.
type createFundRequest struct {
	Creator string   `json:"creator"`
	Name    string   `json:"name"`
	Ticker  string   `json:"ticker"`
	Assets  []string `json:"assets"`
	Weights []uint8  `json:"weights"` // optional; equal split when omitted
}

// CreateFund creates a new fund, charging the creator the creation fee.
// POST /api/funds
func (h *FundHandler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req createFundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if !common.IsHexAddress(req.Creator) {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}
	assets := make([]common.Address, 0, len(req.Assets))
	for _, a := range req.Assets {
		if !common.IsHexAddress(a) {
			writeError(w, http.StatusBadRequest, "invalid asset address: "+a)
			return
		}
		assets = append(assets, common.HexToAddress(a))
	}

	fund, err := h.funds.CreateFund(r.Context(), common.HexToAddress(req.Creator), req.Name, req.Ticker, assets, req.Weights)
	if err != nil {
		status, msg := mapFundError(err)
		if status == http.StatusInternalServerError {
			h.writeFailure(w, r, "create fund", common.Address{}, err)
			return
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, summarize(fund))
}

// moveRequest is the JSON body for deposits and withdrawals. Amount is the
// base-asset quantity on deposit and the share quantity on withdraw, both as
// 18-decimal fixed-point decimal strings.
type moveRequest struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

// Deposit swaps a base-asset contribution into the fund's underlying assets
// and mints shares for the holder.
// POST /api/funds/{address}/deposit
func (h *FundHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddr(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fund address")
		return
	}

	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Holder) {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	minted, err := h.funds.Deposit(r.Context(), addr, common.HexToAddress(req.Holder), amount)
	if err != nil {
		status, msg := mapFundError(err)
		if status == http.StatusInternalServerError {
			h.writeFailure(w, r, "deposit", addr, err)
			return
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"fund":   addr.Hex(),
		"holder": req.Holder,
		"minted": minted.String(),
	})
}

// Withdraw burns the holder's shares and pays out their proportional slice of
// the fund in the base asset.
// POST /api/funds/{address}/withdraw
func (h *FundHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddr(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fund address")
		return
	}

	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Holder) {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}
	shares, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	proceeds, err := h.funds.Withdraw(r.Context(), addr, common.HexToAddress(req.Holder), shares)
	if err != nil {
		status, msg := mapFundError(err)
		if status == http.StatusInternalServerError {
			h.writeFailure(w, r, "withdraw", addr, err)
			return
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"fund":     addr.Hex(),
		"holder":   req.Holder,
		"proceeds": proceeds.String(),
	})
}

// proportionsRequest is the JSON body for a rebalance.
type proportionsRequest struct {
	Caller  string   `json:"caller"`
	Assets  []string `json:"assets"`
	Weights []uint8  `json:"weights"`
}

// SetProportions retargets the fund's weights and rebalances holdings to
// match.
// PUT /api/funds/{address}/proportions
func (h *FundHandler) SetProportions(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddr(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fund address")
		return
	}

	var req proportionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Caller) {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	assets := make([]common.Address, 0, len(req.Assets))
	for _, a := range req.Assets {
		if !common.IsHexAddress(a) {
			writeError(w, http.StatusBadRequest, "invalid asset address: "+a)
			return
		}
		assets = append(assets, common.HexToAddress(a))
	}

	err := h.funds.SetProportions(r.Context(), addr, common.HexToAddress(req.Caller), assets, req.Weights)
	if err != nil {
		status, msg := mapFundError(err)
		if status == http.StatusInternalServerError {
			h.writeFailure(w, r, "set proportions", addr, err)
			return
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"fund":   addr.Hex(),
		"status": "rebalanced",
	})
}

// ListCreatorFunds returns every fund a creator has launched.
// GET /api/creators/{address}/funds
func (h *FundHandler) ListCreatorFunds(w http.ResponseWriter, r *http.Request) {
	creator, ok := pathAddr(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}

	sums, err := h.funds.ListCreatorFunds(r.Context(), creator)
	if err != nil {
		h.writeFailure(w, r, "list creator funds", creator, err)
		return
	}
	summaries := make([]fundSummary, len(sums))
	for i, sum := range sums {
		summaries[i] = summaryView(sum)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"creator": creator.Hex(),
		"funds":   summaries,
	})
}

// auditEntryView is one row of the audit endpoint response.
type auditEntryView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ListAudit returns recent fund operations from the audit log, newest first.
// GET /api/audit?limit=50&offset=0
func (h *FundHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.funds.AuditLog(r.Context(), opts)
	if err != nil {
		h.writeFailure(w, r, "list audit log", common.Address{}, err)
		return
	}

	views := make([]auditEntryView, len(entries))
	for i, e := range entries {
		views[i] = auditEntryView{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": views,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// writeFailure logs an unexpected error and responds with a generic 500.
func (h *FundHandler) writeFailure(w http.ResponseWriter, r *http.Request, op string, fund common.Address, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("fund", fund.Hex()),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

// mapFundError translates domain sentinel errors into HTTP status codes.
// Unknown errors map to 500 so the caller can log them.
func mapFundError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "fund not found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "caller is not the fund owner"
	case errors.Is(err, domain.ErrInsufficientFee):
		return http.StatusPaymentRequired, "insufficient utility token balance for creation fee"
	case errors.Is(err, domain.ErrFeeNotApproved):
		return http.StatusPaymentRequired, "creation fee allowance not granted"
	case errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrZeroAddress),
		errors.Is(err, domain.ErrNoAssets),
		errors.Is(err, domain.ErrDuplicateAsset),
		errors.Is(err, domain.ErrAssetSetMismatch),
		errors.Is(err, domain.ErrInvalidWeights),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrDustDeposit),
		errors.Is(err, domain.ErrZeroProceeds):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrStalePrice),
		errors.Is(err, domain.ErrFeedNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, ""
	}
}
