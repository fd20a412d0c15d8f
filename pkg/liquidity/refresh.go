package liquidity

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/baseline"
)

// PoolLister lists the pools a party can see.
type PoolLister interface {
	PoolsForParty(ctx context.Context, party string) ([]backend.PoolInfo, error)
}

// RefreshOutcome records what the post-settlement refresh observed.
type RefreshOutcome struct {
	Before  *baseline.Snapshot
	After   *baseline.Snapshot
	Changed bool
	Polls   int
}

// Refresher waits for the party's view of a pool to reflect a settlement
// and stores the result as the next baseline.
type Refresher struct {
	pools  PoolLister
	store  baseline.Store
	config *Config
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *logrus.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(config *Config, pools PoolLister, store baseline.Store, clock func() time.Time, sleep func(context.Context, time.Duration) error) *Refresher {
	return &Refresher{
		pools:  pools,
		store:  store,
		config: config,
		now:    clock,
		sleep:  sleep,
		logger: config.Logger,
	}
}

// Baseline returns the stored snapshot for (party, poolID), or a fresh
// observation when none is stored. It may return nil when the pool is not
// listed at all.
func (r *Refresher) Baseline(ctx context.Context, party, poolID, poolCid string) (*baseline.Snapshot, error) {
	stored, err := r.store.Get(ctx, party, poolID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}
	return r.observe(ctx, party, poolID, poolCid)
}

// AwaitChange polls until the pool differs from before or the refresh
// timeout passes, then persists the last observation.
func (r *Refresher) AwaitChange(ctx context.Context, before *baseline.Snapshot, party, poolID, poolCid, requestID string) (*RefreshOutcome, error) {
	out := &RefreshOutcome{Before: before}
	log := r.logger.WithFields(logrus.Fields{
		"party":      party,
		"pool_id":    poolID,
		"request_id": requestID,
	})

	deadline := r.now().Add(r.config.RefreshTimeout)
	for {
		after, err := r.observe(ctx, party, poolID, poolCid)
		out.Polls++
		if err != nil {
			log.WithError(err).Warn("Pool refresh poll failed")
		} else if after != nil {
			out.After = after
			if before == nil || before.Differs(*after) {
				out.Changed = true
				break
			}
		}
		if !r.now().Before(deadline) {
			break
		}
		if err := r.sleep(ctx, r.config.RefreshInterval); err != nil {
			return out, err
		}
	}

	if out.After == nil {
		log.Warn("Pool not listed after settlement, keeping previous baseline")
		return out, nil
	}

	next := *out.After
	if before != nil {
		next.ObservedCids = before.ObservedCids
	}
	next = next.WithObserved(out.After.PoolCid)
	next.LastRequestID = requestID
	next.UpdatedAt = r.now()
	if err := r.store.Put(ctx, next); err != nil {
		return out, fmt.Errorf("store baseline: %w", err)
	}
	out.After = &next

	log.WithFields(logrus.Fields{
		"pool_cid":  next.PoolCid,
		"changed":   out.Changed,
		"polls":     out.Polls,
		"reserve_a": next.ReserveA.String(),
		"reserve_b": next.ReserveB.String(),
	}).Info("Refreshed pool baseline")
	return out, nil
}

// observe reads the pool from the party's listing, preferring poolCid and
// otherwise the same pool id with the highest reserve product.
func (r *Refresher) observe(ctx context.Context, party, poolID, poolCid string) (*baseline.Snapshot, error) {
	pools, err := r.pools.PoolsForParty(ctx, party)
	if err != nil {
		return nil, err
	}

	var pick *backend.PoolInfo
	for i := range pools {
		p := &pools[i]
		if poolCid != "" && p.PoolCid == poolCid {
			pick = p
			break
		}
		if p.PoolID == poolID && (pick == nil || p.ReserveProduct().GreaterThan(pick.ReserveProduct())) {
			pick = p
		}
	}
	if pick == nil {
		return nil, nil
	}
	return &baseline.Snapshot{
		Party:    party,
		PoolID:   poolID,
		PoolCid:  pick.PoolCid,
		SymbolA:  pick.SymbolA,
		SymbolB:  pick.SymbolB,
		ReserveA: pick.ReserveA,
		ReserveB: pick.ReserveB,
	}, nil
}
