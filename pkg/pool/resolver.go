// Package pool turns a logical pool id into a contract reference the acting
// party can actually see.
//
// A pool id may map to several live contracts (an original and its
// reissues) and per-party visibility can lag behind the ledger. The
// Resolver never tries to fix visibility; when a candidate is not visible it
// picks a different, visible instance instead.
package pool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/metrics"
)

// Source records how a reference was chosen.
type Source string

const (
	// SourceResolved is the backend's resolve-and-grant candidate
	SourceResolved Source = "resolved"
	// SourcePreferredPackage is an instance matching the preferred package prefix
	SourcePreferredPackage Source = "preferred_package"
	// SourcePoolID is a visible instance with the same pool id
	SourcePoolID Source = "pool_id"
	// SourceSymbols is a visible instance with the same token pair
	SourceSymbols Source = "symbols"
)

var alpha = regexp.MustCompile(`^[A-Z]+$`)

// Backend is the subset of the backend client the resolver needs.
type Backend interface {
	ResolveAndGrant(ctx context.Context, poolID, party string) (*backend.ResolveResponse, error)
	FetchPoolVisible(ctx context.Context, poolCid, party string) (bool, error)
	PoolsForParty(ctx context.Context, party string) ([]backend.PoolInfo, error)
}

// Resolution is a pool reference ready for immediate use.
type Resolution struct {
	PoolID    string
	PoolCid   string
	PackageID string
	Source    Source
	// Pool is set when the reference came from the party's pool listing.
	Pool *backend.PoolInfo
}

// Resolver maps pool ids to visible contract references. Results are not
// cached; call Resolve again before each use.
type Resolver struct {
	backend Backend
	config  *Config
	logger  *logrus.Logger
	metrics *metrics.Collectors
}

// NewResolver creates a Resolver. m may be nil.
func NewResolver(config *Config, b Backend, m *metrics.Collectors) *Resolver {
	return &Resolver{
		backend: b,
		config:  config,
		logger:  config.Logger,
		metrics: m,
	}
}

// Resolve returns a reference to poolID that party can see, or a
// POOL_NOT_VISIBLE error when no visible instance exists.
func (r *Resolver) Resolve(ctx context.Context, poolID, party string) (*Resolution, error) {
	if poolID == "" {
		return nil, domain.Validation("poolId is required")
	}
	log := r.logger.WithFields(logrus.Fields{"pool_id": poolID, "party": party})

	candidate := &Resolution{PoolID: poolID, Source: SourceResolved}
	resolved, err := r.backend.ResolveAndGrant(ctx, poolID, party)
	switch {
	case grantFailed(err):
		// The backend could not grant; the party may still see another instance.
		log.WithError(err).Warn("Resolve-and-grant failed, falling back to visible pools")
	case err != nil:
		return nil, fmt.Errorf("resolve pool %s: %w", poolID, err)
	default:
		candidate.PoolCid = resolved.PoolCid
		candidate.PackageID = resolved.PackageID
	}

	// Listing is fetched lazily and at most once per Resolve call.
	var listed []backend.PoolInfo
	list := func() ([]backend.PoolInfo, error) {
		if listed != nil {
			return listed, nil
		}
		pools, err := r.backend.PoolsForParty(ctx, party)
		if err != nil {
			return nil, fmt.Errorf("list pools for %s: %w", party, err)
		}
		listed = pools
		if listed == nil {
			listed = []backend.PoolInfo{}
		}
		return listed, nil
	}

	if prefix := r.config.PreferredPackagePrefix; prefix != "" && !strings.HasPrefix(candidate.PackageID, prefix) {
		pools, err := list()
		if err != nil {
			return nil, err
		}
		if p := best(pools, func(p backend.PoolInfo) bool {
			return p.PoolID == poolID && strings.HasPrefix(p.PackageID, prefix)
		}); p != nil {
			log.WithFields(logrus.Fields{
				"from_cid": candidate.PoolCid,
				"pool_cid": p.PoolCid,
				"package":  p.PackageID,
			}).Info("Preferring pool instance from configured package")
			candidate = fromInfo(poolID, p, SourcePreferredPackage)
		}
	}

	if candidate.PoolCid != "" {
		visible, err := r.backend.FetchPoolVisible(ctx, candidate.PoolCid, party)
		if err != nil {
			return nil, fmt.Errorf("probe pool %s: %w", candidate.PoolCid, err)
		}
		if visible {
			r.metrics.ObservePoolResolution(string(candidate.Source))
			log.WithField("pool_cid", candidate.PoolCid).Debug("Pool reference is visible")
			return candidate, nil
		}
		log.WithField("pool_cid", candidate.PoolCid).Warn("Pool reference not visible to party, selecting another instance")
	}

	pools, err := list()
	if err != nil {
		return nil, err
	}
	replacement := r.replace(poolID, candidate.PoolCid, pools)
	if replacement == nil {
		return nil, domain.NewDomainError(domain.CodePoolNotVisible,
			fmt.Sprintf("pool %s is not visible to %s", poolID, party), nil)
	}

	r.metrics.ObservePoolResolution(string(replacement.Source))
	log.WithFields(logrus.Fields{
		"pool_cid": replacement.PoolCid,
		"source":   replacement.Source,
	}).Info("Replaced invisible pool reference")
	return replacement, nil
}

// replace picks a listed instance other than invisibleCid, first by pool id
// then by token pair. Both prefer the highest reserve product.
func (r *Resolver) replace(poolID, invisibleCid string, pools []backend.PoolInfo) *Resolution {
	usable := func(p backend.PoolInfo) bool {
		return p.PoolCid != "" && p.PoolCid != invisibleCid
	}

	if p := best(pools, func(p backend.PoolInfo) bool {
		return usable(p) && p.PoolID == poolID
	}); p != nil {
		return fromInfo(poolID, p, SourcePoolID)
	}

	symA, symB, ok := ParseSymbols(poolID)
	if !ok {
		return nil
	}
	if p := best(pools, func(p backend.PoolInfo) bool {
		if !usable(p) {
			return false
		}
		a, b := strings.ToUpper(p.SymbolA), strings.ToUpper(p.SymbolB)
		return (a == symA && b == symB) || (a == symB && b == symA)
	}); p != nil {
		return fromInfo(poolID, p, SourceSymbols)
	}
	return nil
}

// grantFailed reports whether err is the backend refusing or failing the
// grant itself. Transport and context errors are not.
func grantFailed(err error) bool {
	if domain.IsDomainError(err, domain.CodePoolNotVisible) {
		return true
	}
	var apiErr *backend.APIError
	return errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError
}

// ParseSymbols extracts the token pair from ids like "ETH-USDC-01" or
// "p0-gv-eth-usdc-225946": the last two adjacent alphabetic segments.
func ParseSymbols(poolID string) (string, string, bool) {
	segments := strings.Split(strings.ToUpper(poolID), "-")
	for i := len(segments) - 1; i > 0; i-- {
		if alpha.MatchString(segments[i-1]) && alpha.MatchString(segments[i]) {
			return segments[i-1], segments[i], true
		}
	}
	return "", "", false
}

// best returns the matching pool with the highest reserve product.
func best(pools []backend.PoolInfo, match func(backend.PoolInfo) bool) *backend.PoolInfo {
	var matches []backend.PoolInfo
	for _, p := range pools {
		if match(p) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ReserveProduct().GreaterThan(matches[j].ReserveProduct())
	})
	return &matches[0]
}

func fromInfo(poolID string, p *backend.PoolInfo, source Source) *Resolution {
	return &Resolution{
		PoolID:    poolID,
		PoolCid:   p.PoolCid,
		PackageID: p.PackageID,
		Source:    source,
		Pool:      p,
	}
}
