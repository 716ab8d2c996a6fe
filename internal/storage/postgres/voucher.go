package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

const (
	getVoucherByCodeSQL = `SELECT code, distributor_id, kind, value, max_discount, description
		FROM vouchers WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	listVoucherCodesSQL = `SELECT code FROM vouchers`

	upsertVoucherSQL = `INSERT INTO vouchers (code, distributor_id, kind, value, max_discount, description, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (code) DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value,
		max_discount = EXCLUDED.max_discount, description = EXCLUDED.description, active = TRUE`
)

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository backed by PostgreSQL.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// FindByCode returns the active voucher matching code case-insensitively.
// Returns voucher.ErrNotFound when no such voucher exists.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getVoucherByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding voucher %q: %w", code, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if isNoRows(err) {
			return nil, voucher.ErrNotFound
		}
		return nil, fmt.Errorf("finding voucher %q: %w", code, err)
	}
	return v, nil
}

// ExistingCodes streams every stored voucher code to fn.
func (r *VoucherRepository) ExistingCodes(ctx context.Context, fn func(code string)) error {
	rows, err := r.pool.Query(ctx, listVoucherCodesSQL)
	if err != nil {
		return fmt.Errorf("listing voucher codes: %w", err)
	}
	defer rows.Close()

	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning voucher codes: %w", err)
	}
	return nil
}

// UpsertVouchers inserts or reactivates the given vouchers in one batch.
func (r *VoucherRepository) UpsertVouchers(ctx context.Context, vouchers []voucher.Voucher) error {
	if len(vouchers) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, v := range vouchers {
		b.Queue(upsertVoucherSQL, v.Code, v.DistributorID, string(v.Kind), v.Value, v.MaxDiscount, v.Description)
	}
	if err := conn(ctx, r.pool).SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upserting %d vouchers: %w", len(vouchers), err)
	}
	return nil
}

func scanVoucher(row pgx.CollectableRow) (*voucher.Voucher, error) {
	var (
		v    voucher.Voucher
		kind string
	)
	if err := row.Scan(&v.Code, &v.DistributorID, &kind, &v.Value, &v.MaxDiscount, &v.Description); err != nil {
		return nil, err
	}
	v.Kind = voucher.Kind(kind)
	return &v, nil
}
