package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// SnapshotProvider is what the archiver needs from the service layer: the set
// of fund addresses and a priced snapshot per fund.
type SnapshotProvider interface {
	FundAddresses() []common.Address
	Snapshot(ctx context.Context, addr common.Address) (domain.FundSnapshot, error)
}

// Archiver periodically captures every fund's NAV snapshot and uploads it to
// object storage under nav/<fund>/<timestamp>.json. The archive is
// append-only; snapshots are never overwritten because keys embed the capture
// time.
type Archiver struct {
	writer   domain.BlobWriter
	provider SnapshotProvider
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an Archiver that snapshots at the given interval.
func NewArchiver(writer domain.BlobWriter, provider SnapshotProvider, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:   writer,
		provider: provider,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// navDocument is the JSON representation stored per snapshot.
type navDocument struct {
	Address     string       `json:"address"`
	Name        string       `json:"name"`
	Ticker      string       `json:"ticker"`
	ShareSupply string       `json:"share_supply"`
	TotalValue  string       `json:"total_value"`
	Holdings    []navHolding `json:"holdings"`
	TakenAt     time.Time    `json:"taken_at"`
}

type navHolding struct {
	Asset     string `json:"asset"`
	Balance   string `json:"balance"`
	Weight    uint8  `json:"weight"`
	BaseValue string `json:"base_value"`
}

// Run captures snapshots on a fixed interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archiver: started",
		slog.Duration("interval", a.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.ArchiveAll(ctx)
		}
	}
}

// ArchiveAll snapshots every known fund once. Individual fund failures are
// logged and skipped so one stale feed does not block the rest of the run.
func (a *Archiver) ArchiveAll(ctx context.Context) {
	addrs := a.provider.FundAddresses()
	for _, addr := range addrs {
		if err := a.archiveOne(ctx, addr); err != nil {
			a.logger.WarnContext(ctx, "archiver: snapshot failed",
				slog.String("fund", addr.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	a.logger.InfoContext(ctx, "archiver: run complete",
		slog.Int("funds", len(addrs)),
	)
}

// archiveOne captures and uploads a single fund snapshot.
func (a *Archiver) archiveOne(ctx context.Context, addr common.Address) error {
	snap, err := a.provider.Snapshot(ctx, addr)
	if err != nil {
		return err
	}

	doc := navDocument{
		Address:     snap.Address.Hex(),
		Name:        snap.Name,
		Ticker:      snap.Ticker,
		ShareSupply: snap.ShareSupply.String(),
		TotalValue:  snap.TotalValue.String(),
		Holdings:    make([]navHolding, len(snap.Holdings)),
		TakenAt:     snap.TakenAt.UTC(),
	}
	for i, h := range snap.Holdings {
		doc.Holdings[i] = navHolding{
			Asset:     h.Asset.Hex(),
			Balance:   h.Balance.String(),
			Weight:    h.Weight,
			BaseValue: h.BaseValue.String(),
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("nav/%s/%s.json", snap.Address.Hex(), doc.TakenAt.Format("20060102T150405Z"))
	return a.writer.Put(ctx, key, data, "application/json")
}
