package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// LiquidityBaseline is the last observed reserve state of one pool as seen
// by one party. Rows are overwritten on every refresh.
type LiquidityBaseline struct {
	Party    string `gorm:"primaryKey;column:party"`
	PoolID   string `gorm:"primaryKey;column:pool_id"`
	PoolCid  string `gorm:"column:pool_cid;not null"`
	SymbolA  string `gorm:"column:symbol_a"`
	SymbolB  string `gorm:"column:symbol_b"`

	ReserveA decimal.Decimal `gorm:"column:reserve_a;type:numeric;not null"`
	ReserveB decimal.Decimal `gorm:"column:reserve_b;type:numeric;not null"`

	// ObservedCids is every contract id this pool has been seen under, oldest first
	ObservedCids  pq.StringArray `gorm:"column:observed_cids;type:text[]"`
	LastRequestID string         `gorm:"column:last_request_id"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for the LiquidityBaseline model
func (LiquidityBaseline) TableName() string {
	return "liquidity_baselines"
}
