package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// FundStore persists the index of created funds for display.
type FundStore interface {
	Insert(ctx context.Context, rec FundRecord) error
	GetByAddress(ctx context.Context, addr common.Address) (FundRecord, error)
	List(ctx context.Context, opts ListOpts) ([]FundRecord, error)
	ListByCreator(ctx context.Context, creator common.Address) ([]FundRecord, error)
	Count(ctx context.Context) (int64, error)
}

// AuditStore persists an append-only audit log of fund operations.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
