package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etherindex/basketd/internal/domain"
)

// FundStore implements domain.FundStore using PostgreSQL. It is the display
// index of created funds; the registry arena stays the source of truth.
type FundStore struct {
	pool *pgxpool.Pool
}

// NewFundStore creates a new FundStore backed by the given connection pool.
func NewFundStore(pool *pgxpool.Pool) *FundStore {
	return &FundStore{pool: pool}
}

// Insert records a newly created fund.
func (s *FundStore) Insert(ctx context.Context, rec domain.FundRecord) error {
	assets := make([]string, 0, len(rec.Assets))
	for _, a := range rec.Assets {
		assets = append(assets, a.Hex())
	}

	const query = `
		INSERT INTO funds (address, name, ticker, creator, assets, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.Address.Hex(), rec.Name, rec.Ticker, rec.Creator.Hex(), assets, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fund %s: %w", rec.Address.Hex(), err)
	}
	return nil
}

// scanFund scans a single fund row.
func scanFund(row pgx.Row) (domain.FundRecord, error) {
	var (
		rec     domain.FundRecord
		address string
		creator string
		assets  []string
	)
	if err := row.Scan(&address, &rec.Name, &rec.Ticker, &creator, &assets, &rec.CreatedAt); err != nil {
		return domain.FundRecord{}, err
	}
	rec.Address = common.HexToAddress(address)
	rec.Creator = common.HexToAddress(creator)
	rec.Assets = make([]common.Address, 0, len(assets))
	for _, a := range assets {
		rec.Assets = append(rec.Assets, common.HexToAddress(a))
	}
	return rec, nil
}

const fundColumns = `address, name, ticker, creator, assets, created_at`

// GetByAddress returns the fund record with the given handle.
func (s *FundStore) GetByAddress(ctx context.Context, addr common.Address) (domain.FundRecord, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE address = $1`
	rec, err := scanFund(s.pool.QueryRow(ctx, query, addr.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FundRecord{}, domain.ErrNotFound
		}
		return domain.FundRecord{}, fmt.Errorf("postgres: get fund %s: %w", addr.Hex(), err)
	}
	return rec, nil
}

// List returns fund records in creation order with pagination.
func (s *FundStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.FundRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + fundColumns + ` FROM funds ORDER BY created_at ASC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list funds: %w", err)
	}
	defer rows.Close()

	var recs []domain.FundRecord
	for rows.Next() {
		rec, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fund: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListByCreator returns every fund created by creator, oldest first.
func (s *FundStore) ListByCreator(ctx context.Context, creator common.Address) ([]domain.FundRecord, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE creator = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, creator.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list funds by creator %s: %w", creator.Hex(), err)
	}
	defer rows.Close()

	var recs []domain.FundRecord
	for rows.Next() {
		rec, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fund: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Count returns the total number of indexed funds.
func (s *FundStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM funds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count funds: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.FundStore = (*FundStore)(nil)
