package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
	"github.com/etherindex/basketd/internal/engine"
)

var (
	testFundAddr = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	testCreator  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	testHolder   = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	testAssetA   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	testAssetB   = common.HexToAddress("0x0000000000000000000000000000000000000a02")
)

type nopOracle struct{}

func (nopOracle) SetPriceFeed(context.Context, common.Address, common.Hash) error { return nil }
func (nopOracle) GetPrice(context.Context, common.Address) (domain.Quote, error) {
	return domain.Quote{Price: big.NewInt(1), Expo: -18, PublishTime: time.Now()}, nil
}

type nopRouter struct{}

func (nopRouter) SwapExactInput(_ context.Context, _, _ common.Address, amountIn, _ *big.Int, _ common.Address) (*big.Int, error) {
	return new(big.Int).Set(amountIn), nil
}

type nopPayments struct{}

func (nopPayments) Transfer(context.Context, common.Address, *big.Int) error { return nil }

func testFund(t *testing.T) *engine.Fund {
	t.Helper()
	f, err := engine.New(engine.Config{
		Address:             testFundAddr,
		Name:                "Blue Chips",
		Ticker:              "BLU",
		Creator:             testCreator,
		Treasury:            common.HexToAddress("0x0000000000000000000000000000000000000d01"),
		Assets:              []common.Address{testAssetA, testAssetB},
		Weights:             []uint8{60, 40},
		FeeSplitCreatorPct:  50,
		FeeSplitTreasuryPct: 50,
	}, nopOracle{}, nopRouter{}, nopPayments{}, discard())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return f
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFundService satisfies FundService with canned results and error
// injection.
type fakeFundService struct {
	fund     *engine.Fund
	sum      domain.FundSummary
	indexSum *domain.FundSummary // overrides IndexedFund when set
	snap     domain.FundSnapshot
	entries  []domain.AuditEntry
	err      error // returned from every call when set

	depositAmount *big.Int
}

func (s *fakeFundService) CreateFund(_ context.Context, _ common.Address, _, _ string, _ []common.Address, _ []uint8) (*engine.Fund, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.fund, nil
}

func (s *fakeFundService) Deposit(_ context.Context, _, _ common.Address, amount *big.Int) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.depositAmount = amount
	return new(big.Int).Set(amount), nil
}

func (s *fakeFundService) Withdraw(_ context.Context, _, _ common.Address, shares *big.Int) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(shares), nil
}

func (s *fakeFundService) SetProportions(_ context.Context, _, _ common.Address, _ []common.Address, _ []uint8) error {
	return s.err
}

func (s *fakeFundService) ListFunds(context.Context, int, int) ([]domain.FundSummary, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return []domain.FundSummary{s.sum}, 1, nil
}

func (s *fakeFundService) ListCreatorFunds(context.Context, common.Address) ([]domain.FundSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.FundSummary{s.sum}, nil
}

func (s *fakeFundService) IndexedFund(context.Context, common.Address) (domain.FundSummary, error) {
	if s.indexSum != nil {
		return *s.indexSum, nil
	}
	if s.err != nil {
		return domain.FundSummary{}, s.err
	}
	return s.sum, nil
}

func (s *fakeFundService) AuditLog(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

func (s *fakeFundService) Value(context.Context, common.Address) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(42), nil
}

func (s *fakeFundService) Snapshot(context.Context, common.Address) (domain.FundSnapshot, error) {
	if s.err != nil {
		return domain.FundSnapshot{}, s.err
	}
	return s.snap, nil
}

func newFakeService(t *testing.T) *fakeFundService {
	f := testFund(t)
	return &fakeFundService{
		fund: f,
		sum: domain.FundSummary{
			Address:     testFundAddr,
			Name:        "Blue Chips",
			Ticker:      "BLU",
			Creator:     testCreator,
			Assets:      []common.Address{testAssetA, testAssetB},
			Weights:     []uint8{60, 40},
			ShareSupply: big.NewInt(0),
			Live:        true,
		},
		snap: domain.FundSnapshot{
			Address:     testFundAddr,
			Name:        "Blue Chips",
			Ticker:      "BLU",
			Creator:     testCreator,
			ShareSupply: big.NewInt(0),
			TotalValue:  big.NewInt(0),
			Holdings: []domain.AssetHolding{
				{Asset: testAssetA, Balance: big.NewInt(0), Weight: 60, BaseValue: big.NewInt(0)},
				{Asset: testAssetB, Balance: big.NewInt(0), Weight: 40, BaseValue: big.NewInt(0)},
			},
			TakenAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func get(t *testing.T, h http.HandlerFunc, path, addrParam string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if addrParam != "" {
		req.SetPathValue("address", addrParam)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func post(t *testing.T, h http.HandlerFunc, path, addrParam, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if addrParam != "" {
		req.SetPathValue("address", addrParam)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestListFunds(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	rec := get(t, h.ListFunds, "/api/funds", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Funds []fundSummary `json:"funds"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Funds) != 1 {
		t.Fatalf("total = %d, funds = %d, want 1 and 1", resp.Total, len(resp.Funds))
	}
	f := resp.Funds[0]
	if f.Ticker != "BLU" || f.Address != testFundAddr.Hex() {
		t.Fatalf("summary = %+v", f)
	}
	if len(f.Weights) != 2 || f.Weights[0] != 60 || f.Weights[1] != 40 {
		t.Fatalf("weights = %v, want [60 40]", f.Weights)
	}
}

func TestGetFund(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	rec := get(t, h.GetFund, "/api/funds/"+testFundAddr.Hex(), testFundAddr.Hex())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp snapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "Blue Chips" || len(resp.Holdings) != 2 {
		t.Fatalf("snapshot = %+v", resp)
	}
	if resp.TakenAt != "2026-08-01T12:00:00Z" {
		t.Fatalf("taken_at = %q", resp.TakenAt)
	}
}

func TestGetFundBadAddress(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())
	rec := get(t, h.GetFund, "/api/funds/nonsense", "nonsense")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetFundNotFound(t *testing.T) {
	svc := newFakeService(t)
	svc.err = domain.ErrNotFound
	h := NewFundHandler(svc, discard())

	rec := get(t, h.GetFund, "/api/funds/"+testFundAddr.Hex(), testFundAddr.Hex())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetFundFromIndex(t *testing.T) {
	svc := newFakeService(t)
	svc.err = domain.ErrNotFound // fund is not resident in this process
	svc.indexSum = &domain.FundSummary{
		Address: testFundAddr,
		Name:    "Old Timer",
		Ticker:  "OLD",
		Creator: testCreator,
		Assets:  []common.Address{testAssetA},
	}
	h := NewFundHandler(svc, discard())

	rec := get(t, h.GetFund, "/api/funds/"+testFundAddr.Hex(), testFundAddr.Hex())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp fundSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ticker != "OLD" || resp.Live {
		t.Fatalf("index summary = %+v, want non-live OLD", resp)
	}
}

func TestListAudit(t *testing.T) {
	svc := newFakeService(t)
	svc.entries = []domain.AuditEntry{
		{ID: 2, Event: "deposit", Detail: map[string]any{"amount": "5"}, CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		{ID: 1, Event: "fund_created", CreatedAt: time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)},
	}
	h := NewFundHandler(svc, discard())

	rec := get(t, h.ListAudit, "/api/audit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Entries []auditEntryView `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].Event != "deposit" {
		t.Fatalf("entries = %+v", resp.Entries)
	}
	if resp.Entries[0].CreatedAt != "2026-08-01T12:00:00Z" {
		t.Fatalf("created_at = %q", resp.Entries[0].CreatedAt)
	}
}

func TestGetValue(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	rec := get(t, h.GetValue, "/api/funds/"+testFundAddr.Hex()+"/value", testFundAddr.Hex())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["value"] != "42" {
		t.Fatalf("value = %q, want 42", resp["value"])
	}
}

func TestCreateFund(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	body := `{"creator":"` + testCreator.Hex() + `","name":"Blue Chips","ticker":"BLU","assets":["` +
		testAssetA.Hex() + `","` + testAssetB.Hex() + `"],"weights":[60,40]}`
	rec := post(t, h.CreateFund, "/api/funds", "", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp fundSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Address != testFundAddr.Hex() {
		t.Fatalf("address = %q, want %q", resp.Address, testFundAddr.Hex())
	}
}

func TestCreateFundBadRequests(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"bad creator", `{"creator":"xyz","name":"F","ticker":"F","assets":["` + testAssetA.Hex() + `"]}`},
		{"bad asset", `{"creator":"` + testCreator.Hex() + `","name":"F","ticker":"F","assets":["nope"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h.CreateFund, "/api/funds", "", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateFundFeeErrors(t *testing.T) {
	for _, sentinel := range []error{domain.ErrInsufficientFee, domain.ErrFeeNotApproved} {
		svc := newFakeService(t)
		svc.err = sentinel
		h := NewFundHandler(svc, discard())

		body := `{"creator":"` + testCreator.Hex() + `","name":"F","ticker":"F","assets":["` + testAssetA.Hex() + `"]}`
		rec := post(t, h.CreateFund, "/api/funds", "", body)
		if rec.Code != http.StatusPaymentRequired {
			t.Fatalf("%v: status = %d, want 402", sentinel, rec.Code)
		}
	}
}

func TestDeposit(t *testing.T) {
	svc := newFakeService(t)
	h := NewFundHandler(svc, discard())

	body := `{"holder":"` + testHolder.Hex() + `","amount":"5000000000000000000"}`
	rec := post(t, h.Deposit, "/api/funds/"+testFundAddr.Hex()+"/deposit", testFundAddr.Hex(), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["minted"] != "5000000000000000000" {
		t.Fatalf("minted = %q", resp["minted"])
	}
	if svc.depositAmount == nil || svc.depositAmount.String() != "5000000000000000000" {
		t.Fatalf("service saw amount %v", svc.depositAmount)
	}
}

func TestDepositBadAmounts(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	for _, amount := range []string{"", "0", "-5", "1.5", "0x10", "lots"} {
		body := `{"holder":"` + testHolder.Hex() + `","amount":"` + amount + `"}`
		rec := post(t, h.Deposit, "/api/funds/"+testFundAddr.Hex()+"/deposit", testFundAddr.Hex(), body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("amount %q: status = %d, want 400", amount, rec.Code)
		}
	}
}

func TestWithdrawErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInsufficientShares, http.StatusBadRequest},
		{domain.ErrZeroProceeds, http.StatusBadRequest},
		{domain.ErrSlippageExceeded, http.StatusConflict},
		{domain.ErrInsufficientLiquidity, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrStalePrice, http.StatusServiceUnavailable},
		{domain.ErrFeedNotConfigured, http.StatusServiceUnavailable},
		{domain.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		svc := newFakeService(t)
		svc.err = tt.err
		h := NewFundHandler(svc, discard())

		body := `{"holder":"` + testHolder.Hex() + `","amount":"1000"}`
		rec := post(t, h.Withdraw, "/api/funds/"+testFundAddr.Hex()+"/withdraw", testFundAddr.Hex(), body)
		if rec.Code != tt.want {
			t.Fatalf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestSetProportions(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	body := `{"caller":"` + testCreator.Hex() + `","assets":["` + testAssetA.Hex() + `","` +
		testAssetB.Hex() + `"],"weights":[80,20]}`
	req := httptest.NewRequest(http.MethodPut, "/api/funds/"+testFundAddr.Hex()+"/proportions", strings.NewReader(body))
	req.SetPathValue("address", testFundAddr.Hex())
	rec := httptest.NewRecorder()
	h.SetProportions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestSetProportionsUnauthorized(t *testing.T) {
	svc := newFakeService(t)
	svc.err = domain.ErrUnauthorized
	h := NewFundHandler(svc, discard())

	body := `{"caller":"` + testHolder.Hex() + `","assets":["` + testAssetA.Hex() + `"],"weights":[100]}`
	req := httptest.NewRequest(http.MethodPut, "/api/funds/"+testFundAddr.Hex()+"/proportions", strings.NewReader(body))
	req.SetPathValue("address", testFundAddr.Hex())
	rec := httptest.NewRecorder()
	h.SetProportions(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestListCreatorFunds(t *testing.T) {
	h := NewFundHandler(newFakeService(t), discard())

	rec := get(t, h.ListCreatorFunds, "/api/creators/"+testCreator.Hex()+"/funds", testCreator.Hex())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Creator string        `json:"creator"`
		Funds   []fundSummary `json:"funds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Creator != testCreator.Hex() || len(resp.Funds) != 1 {
		t.Fatalf("response = %+v", resp)
	}
}
