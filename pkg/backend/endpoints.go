package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/domain"
)

// ResolveAndGrant resolves poolID to its current contract and asks the
// backend to grant party visibility of it.
func (c *Client) ResolveAndGrant(ctx context.Context, poolID, party string) (*ResolveResponse, error) {
	if poolID == "" {
		return nil, domain.Validation("poolId is required")
	}
	if party == "" {
		party = c.config.Party
	}

	var out ResolveResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/resolve-and-grant",
		headers: partyHeader(party),
		body:    ResolveRequest{PoolID: poolID, Party: party},
	}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success && out.Error != "" {
		return &out, domain.NewDomainError(domain.CodePoolNotVisible, out.Error, nil)
	}

	c.logger.WithFields(logrus.Fields{
		"pool_id":            poolID,
		"pool_cid":           out.PoolCid,
		"package_id":         out.PackageID,
		"visibility_granted": out.VisibilityGranted,
	}).Debug("Resolved pool")
	return &out, nil
}

// FetchPoolVisible reports whether poolCid is visible to party.
func (c *Client) FetchPoolVisible(ctx context.Context, poolCid, party string) (bool, error) {
	if poolCid == "" {
		return false, domain.Validation("poolCid is required")
	}
	if party == "" {
		party = c.config.Party
	}

	var out VisibilityResponse
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/pool/fetch-cid",
		query:   url.Values{"cid": {poolCid}},
		headers: partyHeader(party),
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Visible, nil
}

// PoolsForParty lists every live pool instance visible to party.
func (c *Client) PoolsForParty(ctx context.Context, party string) ([]PoolInfo, error) {
	if party == "" {
		party = c.config.Party
	}
	if party == "" {
		return nil, domain.Validation("party is required")
	}

	var raw json.RawMessage
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/pools-for-party",
		query:   url.Values{"party": {party}},
		headers: partyHeader(party),
	}, &raw)
	if err != nil {
		return nil, err
	}

	// Older backends wrap the list as {success, pools: [...]}.
	var pools []PoolInfo
	if err := json.Unmarshal(raw, &pools); err != nil {
		var wrapped struct {
			Pools []PoolInfo `json:"pools"`
		}
		if werr := json.Unmarshal(raw, &wrapped); werr != nil {
			return nil, domain.NewDomainError(domain.CodeTransport, "failed to decode pools-for-party response", err)
		}
		pools = wrapped.Pools
	}
	return pools, nil
}

// SelectHolding asks the backend to poll for a holding matching req. The
// HTTP timeout is the poll timeout plus grace so the backend can answer
// "not found" before the client gives up.
func (c *Client) SelectHolding(ctx context.Context, req HoldingSelectRequest) (*HoldingSelectResponse, error) {
	var out HoldingSelectResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/holdings/select",
		body:    req,
		timeout: time.Duration(req.TimeoutSeconds)*time.Second + c.config.RequestTimeout,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConsumeLiquidity settles an add-liquidity request whose two inbound
// transfers have both been submitted.
func (c *Client) ConsumeLiquidity(ctx context.Context, req ConsumeRequest) (*ConsumeResponse, error) {
	if req.RequestID == "" {
		return nil, domain.Validation("requestId is required")
	}
	var env apiResponse[ConsumeResponse]
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/liquidity/consume",
		body:   req,
	}, &env)
	if err != nil {
		return nil, err
	}
	out, err := decodeEnvelope(http.StatusOK, env)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InspectLiquidity reports what the backend currently sees for requestID.
func (c *Client) InspectLiquidity(ctx context.Context, requestID string) (*InspectResponse, error) {
	if requestID == "" {
		return nil, domain.Validation("requestId is required")
	}
	var env apiResponse[InspectResponse]
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/liquidity/inspect",
		query:  url.Values{"requestId": {requestID}},
	}, &env)
	if err != nil {
		return nil, err
	}
	out, err := decodeEnvelope(http.StatusOK, env)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", requestID, err)
	}
	return &out, nil
}

func partyHeader(party string) map[string]string {
	if party == "" {
		return nil
	}
	return map[string]string{"X-Party": party}
}
