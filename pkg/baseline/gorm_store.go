package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clearportx/amm-client/pkg/db/models"
)

// GormStore keeps snapshots in the liquidity_baselines table.
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewGormStore creates a GormStore on an open database.
func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	return &GormStore{db: db, logger: logger, now: time.Now}
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, party, poolID string) (*Snapshot, error) {
	var row models.LiquidityBaseline
	err := s.db.WithContext(ctx).
		Where("party = ? AND pool_id = ?", party, poolID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	return &Snapshot{
		Party:         row.Party,
		PoolID:        row.PoolID,
		PoolCid:       row.PoolCid,
		SymbolA:       row.SymbolA,
		SymbolB:       row.SymbolB,
		ReserveA:      row.ReserveA,
		ReserveB:      row.ReserveB,
		ObservedCids:  []string(row.ObservedCids),
		LastRequestID: row.LastRequestID,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

// Put implements Store with an upsert on (party, pool_id).
func (s *GormStore) Put(ctx context.Context, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = s.now()
	}
	observed := pq.StringArray(snap.ObservedCids)
	if observed == nil {
		observed = pq.StringArray{}
	}

	row := models.LiquidityBaseline{
		Party:         snap.Party,
		PoolID:        snap.PoolID,
		PoolCid:       snap.PoolCid,
		SymbolA:       snap.SymbolA,
		SymbolB:       snap.SymbolB,
		ReserveA:      snap.ReserveA,
		ReserveB:      snap.ReserveB,
		ObservedCids:  observed,
		LastRequestID: snap.LastRequestID,
		UpdatedAt:     snap.UpdatedAt,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "party"}, {Name: "pool_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"pool_cid", "symbol_a", "symbol_b", "reserve_a", "reserve_b",
				"observed_cids", "last_request_id", "updated_at",
			}),
		}).
		Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to save baseline: %w", result.Error)
	}

	s.logger.WithFields(logrus.Fields{
		"party":     snap.Party,
		"pool_id":   snap.PoolID,
		"pool_cid":  snap.PoolCid,
		"reserve_a": snap.ReserveA.String(),
		"reserve_b": snap.ReserveB.String(),
	}).Debug("Saved liquidity baseline")
	return nil
}
