// Package service exposes the fund operations consumed by the API layer. It
// wraps the accounting engine with the distributed per-fund lock, the audit
// log, and event publishing, keeping the engine itself free of
// infrastructure concerns.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/etherindex/basketd/internal/domain"
	"github.com/etherindex/basketd/internal/engine"
	"github.com/etherindex/basketd/internal/registry"
)

// EventsChannel is the pub/sub channel fund events are published on.
const EventsChannel = "funds"

// EventsStream is the durable stream fund events are appended to.
const EventsStream = "fund_events"

// fundLockTTL bounds how long a crashed replica can hold a fund lock.
const fundLockTTL = 2 * time.Minute

// FundService orchestrates fund operations.
type FundService struct {
	registry *registry.Registry
	store    domain.FundStore   // optional; persistent display index of created funds
	locks    domain.LockManager // optional; single-replica deployments rely on the engine's own lock
	audit    domain.AuditStore  // optional
	bus      domain.SignalBus   // optional
	logger   *slog.Logger
}

// NewFundService creates a FundService. store, locks, audit, and bus may be
// nil.
func NewFundService(reg *registry.Registry, store domain.FundStore, locks domain.LockManager, audit domain.AuditStore, bus domain.SignalBus, logger *slog.Logger) *FundService {
	return &FundService{
		registry: reg,
		store:    store,
		locks:    locks,
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "fund_service")),
	}
}

// withFundLock runs fn while holding the distributed lock for fund, when a
// lock manager is configured. The in-process engine lock still guards the
// accounting state either way; this lock extends single-writer semantics
// across replicas.
func (s *FundService) withFundLock(ctx context.Context, fund common.Address, fn func() error) error {
	if s.locks == nil {
		return fn()
	}
	unlock, err := s.locks.Acquire(ctx, "fund:"+fund.Hex(), fundLockTTL)
	if err != nil {
		return fmt.Errorf("fund_service: acquire fund lock: %w", err)
	}
	defer unlock()
	return fn()
}

// publish emits a fund event to the bus and the audit log. Failures are
// logged, never surfaced: the operation already committed.
func (s *FundService) publish(ctx context.Context, evt domain.FundEvent, detail map[string]any) {
	evt.ID = uuid.New().String()
	evt.At = time.Now().UTC()

	if s.bus != nil {
		payload, _ := json.Marshal(evt)
		if err := s.bus.Publish(ctx, EventsChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("event", evt.Event),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, EventsStream, payload); err != nil {
			s.logger.WarnContext(ctx, "stream append failed",
				slog.String("event", evt.Event),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, evt.Event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", evt.Event),
				slog.String("error", err.Error()),
			)
		}
	}
}

// CreateFund charges the creation fee and instantiates a new fund.
func (s *FundService) CreateFund(ctx context.Context, creator common.Address, name, ticker string, assets []common.Address, weights []uint8) (*engine.Fund, error) {
	fund, err := s.registry.CreateFund(ctx, creator, name, ticker, assets, weights)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.FundEvent{
		Event: "fund_created",
		Fund:  fund.Address(),
		Actor: creator,
	}, map[string]any{
		"fund":    fund.Address().Hex(),
		"creator": creator.Hex(),
		"name":    name,
		"ticker":  ticker,
	})
	return fund, nil
}

// Deposit invests amount of base asset into the fund at addr for holder and
// returns the minted shares.
func (s *FundService) Deposit(ctx context.Context, addr, holder common.Address, amount *big.Int) (*big.Int, error) {
	fund, err := s.registry.FundByAddress(addr)
	if err != nil {
		return nil, err
	}

	var minted *big.Int
	err = s.withFundLock(ctx, addr, func() error {
		var depErr error
		minted, depErr = fund.Deposit(ctx, holder, amount)
		return depErr
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.FundEvent{
		Event:  "deposit",
		Fund:   addr,
		Actor:  holder,
		Amount: amount.String(),
		Minted: minted.String(),
	}, map[string]any{
		"fund":   addr.Hex(),
		"holder": holder.Hex(),
		"amount": amount.String(),
		"minted": minted.String(),
	})
	return minted, nil
}

// Withdraw redeems shares from the fund at addr and returns the base-asset
// proceeds.
func (s *FundService) Withdraw(ctx context.Context, addr, holder common.Address, shares *big.Int) (*big.Int, error) {
	fund, err := s.registry.FundByAddress(addr)
	if err != nil {
		return nil, err
	}

	var proceeds *big.Int
	err = s.withFundLock(ctx, addr, func() error {
		var wErr error
		proceeds, wErr = fund.Withdraw(ctx, holder, shares)
		return wErr
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.FundEvent{
		Event:  "withdraw",
		Fund:   addr,
		Actor:  holder,
		Amount: proceeds.String(),
		Burned: shares.String(),
	}, map[string]any{
		"fund":     addr.Hex(),
		"holder":   holder.Hex(),
		"shares":   shares.String(),
		"proceeds": proceeds.String(),
	})
	return proceeds, nil
}

// SetProportions re-targets the fund's composition. Owner-only.
func (s *FundService) SetProportions(ctx context.Context, addr, caller common.Address, assets []common.Address, weights []uint8) error {
	fund, err := s.registry.FundByAddress(addr)
	if err != nil {
		return err
	}

	err = s.withFundLock(ctx, addr, func() error {
		return fund.SetProportions(ctx, caller, assets, weights)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.FundEvent{
		Event: "rebalance",
		Fund:  addr,
		Actor: caller,
	}, map[string]any{
		"fund":   addr.Hex(),
		"caller": caller.Hex(),
	})
	return nil
}

// liveSummary builds the display view of a fund resident in this process.
func liveSummary(f *engine.Fund) domain.FundSummary {
	assets := f.UnderlyingTokens()
	weights := make([]uint8, len(assets))
	for i, a := range assets {
		weights[i] = f.TargetProportion(a)
	}
	return domain.FundSummary{
		Address:     f.Address(),
		Name:        f.Name(),
		Ticker:      f.Ticker(),
		Creator:     f.Creator(),
		Assets:      assets,
		Weights:     weights,
		ShareSupply: f.ShareSupply(),
		Live:        true,
	}
}

// mergeRecord overlays live engine state onto an indexed record when the fund
// is resident; otherwise the record's metadata stands alone.
func (s *FundService) mergeRecord(rec domain.FundRecord) domain.FundSummary {
	if f, err := s.registry.FundByAddress(rec.Address); err == nil {
		sum := liveSummary(f)
		sum.CreatedAt = rec.CreatedAt
		return sum
	}
	return domain.FundSummary{
		Address:   rec.Address,
		Name:      rec.Name,
		Ticker:    rec.Ticker,
		Creator:   rec.Creator,
		Assets:    append([]common.Address(nil), rec.Assets...),
		CreatedAt: rec.CreatedAt,
	}
}

// registryPage builds summaries straight from the in-memory arena.
func (s *FundService) registryPage(offset, limit int) ([]domain.FundSummary, int) {
	funds := s.registry.Funds(offset, limit)
	out := make([]domain.FundSummary, len(funds))
	for i, f := range funds {
		out[i] = liveSummary(f)
	}
	return out, s.registry.Count()
}

// ListFunds returns a page of fund summaries in creation order plus the total
// count. When the persistent index is configured it is the read source, so
// funds created by an earlier process still list; a failing index degrades to
// the in-memory arena rather than taking the endpoint down.
func (s *FundService) ListFunds(ctx context.Context, offset, limit int) ([]domain.FundSummary, int, error) {
	if s.store == nil {
		sums, total := s.registryPage(offset, limit)
		return sums, total, nil
	}

	recs, err := s.store.List(ctx, domain.ListOpts{Offset: offset, Limit: limit})
	if err != nil {
		s.logger.WarnContext(ctx, "fund index list failed, serving arena",
			slog.String("error", err.Error()),
		)
		sums, total := s.registryPage(offset, limit)
		return sums, total, nil
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "fund index count failed, serving arena count",
			slog.String("error", err.Error()),
		)
		total = int64(s.registry.Count())
	}

	out := make([]domain.FundSummary, len(recs))
	for i, rec := range recs {
		out[i] = s.mergeRecord(rec)
	}
	return out, int(total), nil
}

// ListCreatorFunds returns every fund created by creator, oldest first,
// preferring the persistent index for the same reasons as ListFunds.
func (s *FundService) ListCreatorFunds(ctx context.Context, creator common.Address) ([]domain.FundSummary, error) {
	if s.store == nil {
		funds := s.registry.CreatorFunds(creator)
		out := make([]domain.FundSummary, len(funds))
		for i, f := range funds {
			out[i] = liveSummary(f)
		}
		return out, nil
	}

	recs, err := s.store.ListByCreator(ctx, creator)
	if err != nil {
		s.logger.WarnContext(ctx, "fund index creator list failed, serving arena",
			slog.String("creator", creator.Hex()),
			slog.String("error", err.Error()),
		)
		funds := s.registry.CreatorFunds(creator)
		out := make([]domain.FundSummary, len(funds))
		for i, f := range funds {
			out[i] = liveSummary(f)
		}
		return out, nil
	}

	out := make([]domain.FundSummary, len(recs))
	for i, rec := range recs {
		out[i] = s.mergeRecord(rec)
	}
	return out, nil
}

// IndexedFund resolves a fund's display summary: live state when resident,
// the persistent index otherwise. Returns domain.ErrNotFound when neither
// knows the address.
func (s *FundService) IndexedFund(ctx context.Context, addr common.Address) (domain.FundSummary, error) {
	if f, err := s.registry.FundByAddress(addr); err == nil {
		return liveSummary(f), nil
	}
	if s.store == nil {
		return domain.FundSummary{}, domain.ErrNotFound
	}
	rec, err := s.store.GetByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.FundSummary{}, domain.ErrNotFound
		}
		return domain.FundSummary{}, fmt.Errorf("fund_service: index lookup: %w", err)
	}
	return s.mergeRecord(rec), nil
}

// AuditLog returns recent audit entries, newest first. Without an audit store
// the log is simply empty.
func (s *FundService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	entries, err := s.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("fund_service: audit list: %w", err)
	}
	return entries, nil
}

// FundAddresses returns the addresses of every created fund, in creation
// order. The snapshot archiver iterates it.
func (s *FundService) FundAddresses() []common.Address {
	funds := s.registry.Funds(0, s.registry.Count())
	addrs := make([]common.Address, len(funds))
	for i, f := range funds {
		addrs[i] = f.Address()
	}
	return addrs
}

// Value returns the fund's NAV in base-asset terms.
func (s *FundService) Value(ctx context.Context, addr common.Address) (*big.Int, error) {
	fund, err := s.registry.FundByAddress(addr)
	if err != nil {
		return nil, err
	}
	return fund.CurrentValue(ctx)
}

// Snapshot returns a consistent view of the fund for display and archiving.
func (s *FundService) Snapshot(ctx context.Context, addr common.Address) (domain.FundSnapshot, error) {
	fund, err := s.registry.FundByAddress(addr)
	if err != nil {
		return domain.FundSnapshot{}, err
	}
	return fund.Snapshot(ctx)
}
