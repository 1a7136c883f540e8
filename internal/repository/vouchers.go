package repository

import (
	"context"
	"database/sql"

	"boothpay/internal/database"
	"boothpay/internal/models"
)

type VoucherRepository struct {
	db *database.DB
}

func NewVoucherRepository(db *database.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

func (r *VoucherRepository) Create(ctx context.Context, voucher *models.Voucher) error {
	query := `INSERT INTO vouchers (code, used_count, usage_cap, active) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query, voucher.Code, voucher.UsedCount, voucher.UsageCap, voucher.Active)
	return err
}

func (r *VoucherRepository) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	voucher := &models.Voucher{}
	query := `SELECT code, used_count, usage_cap, active FROM vouchers WHERE code = $1`

	err := r.db.Conn(ctx).QueryRowContext(ctx, query, code).Scan(
		&voucher.Code,
		&voucher.UsedCount,
		&voucher.UsageCap,
		&voucher.Active,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return voucher, err
}

// Redeem increments the usage counter of an active voucher below its cap.
// A false result means the guard refused and nothing changed.
func (r *VoucherRepository) Redeem(ctx context.Context, code string) (bool, error) {
	query := `
		UPDATE vouchers
		SET used_count = used_count + 1
		WHERE code = $1
		  AND active
		  AND (usage_cap IS NULL OR used_count < usage_cap)`

	res, err := r.db.Conn(ctx).ExecContext(ctx, query, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
