package pool_test

import (
	"context"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/pool"
)

type fakeBackend struct {
	resolved   *backend.ResolveResponse
	resolveErr error
	visible    map[string]bool
	pools      []backend.PoolInfo
	probes     []string
	listCalls  int
}

func (f *fakeBackend) ResolveAndGrant(_ context.Context, poolID, _ string) (*backend.ResolveResponse, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.resolved, nil
}

func (f *fakeBackend) FetchPoolVisible(_ context.Context, poolCid, _ string) (bool, error) {
	f.probes = append(f.probes, poolCid)
	return f.visible[poolCid], nil
}

func (f *fakeBackend) PoolsForParty(context.Context, string) ([]backend.PoolInfo, error) {
	f.listCalls++
	return f.pools, nil
}

func info(id, cid, a, b, ra, rb, pkg string) backend.PoolInfo {
	return backend.PoolInfo{
		PoolID: id, PoolCid: cid, SymbolA: a, SymbolB: b,
		ReserveA: decimal.RequireFromString(ra), ReserveB: decimal.RequireFromString(rb),
		PackageID: pkg,
	}
}

var _ = Describe("Resolver", func() {
	var (
		fake   *fakeBackend
		config *pool.Config
	)

	BeforeEach(func() {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		config = &pool.Config{Logger: logger}
		fake = &fakeBackend{
			resolved: &backend.ResolveResponse{Success: true, PoolID: "ETH-USDC-01", PoolCid: "cid-old", PackageID: "aaa111"},
			visible:  map[string]bool{},
		}
	})

	resolve := func() (*pool.Resolution, error) {
		return pool.NewResolver(config, fake, nil).Resolve(context.Background(), "ETH-USDC-01", "alice::1220")
	}

	It("returns the resolved reference when it is visible", func() {
		fake.visible["cid-old"] = true

		res, err := resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.PoolCid).To(Equal("cid-old"))
		Expect(res.Source).To(Equal(pool.SourceResolved))
		Expect(fake.listCalls).To(BeZero())
	})

	It("replaces an invisible reference with a visible instance of the same pool", func() {
		fake.pools = []backend.PoolInfo{
			info("ETH-USDC-01", "cid-old", "ETH", "USDC", "1", "1", "aaa111"),
			info("ETH-USDC-01", "cid-new", "ETH", "USDC", "10", "20000", "bbb222"),
		}

		res, err := resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.PoolCid).To(Equal("cid-new"))
		Expect(res.Source).To(Equal(pool.SourcePoolID))
		Expect(fake.probes).To(Equal([]string{"cid-old"}))
	})

	It("falls back to the token pair with the highest reserve product", func() {
		fake.pools = []backend.PoolInfo{
			info("OTHER-1", "cid-small", "ETH", "USDC", "1", "100", ""),
			info("OTHER-2", "cid-big", "USDC", "ETH", "5000", "2", ""),
			info("BTC-USDC-01", "cid-btc", "BTC", "USDC", "100", "100000", ""),
		}

		res, err := resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.PoolCid).To(Equal("cid-big"))
		Expect(res.Source).To(Equal(pool.SourceSymbols))
	})

	It("never hands back the invisible reference", func() {
		fake.pools = []backend.PoolInfo{info("ETH-USDC-01", "cid-old", "ETH", "USDC", "1", "1", "")}

		_, err := resolve()
		Expect(domain.IsDomainError(err, domain.CodePoolNotVisible)).To(BeTrue())
	})

	It("prefers the configured package prefix", func() {
		config.PreferredPackagePrefix = "bbb"
		fake.visible["cid-new"] = true
		fake.pools = []backend.PoolInfo{
			info("ETH-USDC-01", "cid-new", "ETH", "USDC", "1", "1", "bbb222"),
		}

		res, err := resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.PoolCid).To(Equal("cid-new"))
		Expect(res.Source).To(Equal(pool.SourcePreferredPackage))
		Expect(fake.probes).To(Equal([]string{"cid-new"}))
		Expect(fake.listCalls).To(Equal(1))
	})

	It("searches visible pools when the grant fails", func() {
		fake.resolveErr = domain.NewDomainError(domain.CodePoolNotVisible, "not granted", nil)
		fake.pools = []backend.PoolInfo{info("ETH-USDC-01", "cid-new", "ETH", "USDC", "1", "1", "")}

		res, err := resolve()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.PoolCid).To(Equal("cid-new"))
		Expect(fake.probes).To(BeEmpty())
	})

	It("propagates other backend failures", func() {
		fake.resolveErr = errors.New("connection refused")

		_, err := resolve()
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})

	DescribeTable("ParseSymbols",
		func(id, a, b string, ok bool) {
			gotA, gotB, gotOK := pool.ParseSymbols(id)
			Expect(gotOK).To(Equal(ok))
			Expect(gotA).To(Equal(a))
			Expect(gotB).To(Equal(b))
		},
		Entry("simple id", "ETH-USDC-01", "ETH", "USDC", true),
		Entry("prefixed id", "p0-gv-eth-usdc-225946", "ETH", "USDC", true),
		Entry("no pair", "pool-1", "", "", false),
	)
})
