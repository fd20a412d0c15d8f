package backend

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ResolveRequest asks the backend to resolve a pool id to a contract and
// grant the party visibility of it.
type ResolveRequest struct {
	PoolID string `json:"poolId"`
	Party  string `json:"party"`
}

// ResolveResponse is the backend's answer to resolve-and-grant.
type ResolveResponse struct {
	Success           bool   `json:"success"`
	PoolID            string `json:"poolId"`
	PoolCid           string `json:"poolCid"`
	VisibilityGranted bool   `json:"visibilityGranted"`
	PartyVisible      *bool  `json:"partyVisible"`
	Module            string `json:"module"`
	Entity            string `json:"entity"`
	PackageID         string `json:"packageId"`
	Error             string `json:"error"`
}

// VisibilityResponse reports whether a pool contract is visible to a party.
type VisibilityResponse struct {
	Success bool   `json:"success"`
	Party   string `json:"party"`
	PoolCid string `json:"poolCid"`
	Visible bool   `json:"visible"`
	Error   string `json:"error"`
}

// PoolInfo is one live pool instance visible to a party.
type PoolInfo struct {
	PoolID    string          `json:"poolId"`
	PoolCid   string          `json:"poolCid"`
	SymbolA   string          `json:"symbolA"`
	SymbolB   string          `json:"symbolB"`
	ReserveA  decimal.Decimal `json:"reserveA"`
	ReserveB  decimal.Decimal `json:"reserveB"`
	PackageID string          `json:"packageId,omitempty"`
	Operator  string          `json:"operator,omitempty"`
}

// ReserveProduct is reserveA*reserveB, used as a liquidity proxy.
func (p PoolInfo) ReserveProduct() decimal.Decimal {
	return p.ReserveA.Mul(p.ReserveB)
}

// HoldingSelectRequest asks the backend to poll for a holding.
type HoldingSelectRequest struct {
	OwnerParty      string          `json:"ownerParty"`
	InstrumentAdmin string          `json:"instrumentAdmin"`
	InstrumentID    string          `json:"instrumentId"`
	MinAmount       decimal.Decimal `json:"minAmount"`
	TimeoutSeconds  int             `json:"timeoutSeconds"`
	PollIntervalMs  int             `json:"pollIntervalMs"`
}

// HoldingSelectResponse is the backend's raw answer. Amount is kept raw so
// callers can decide what an unparseable amount means.
type HoldingSelectResponse struct {
	Found                 bool            `json:"found"`
	HoldingCid            string          `json:"holdingCid"`
	InstrumentAdmin       string          `json:"instrumentAdmin"`
	InstrumentID          string          `json:"instrumentId"`
	Amount                json.RawMessage `json:"amount"`
	Owner                 string          `json:"owner"`
	Attempts              int             `json:"attempts"`
	ElapsedMs             int64           `json:"elapsedMs"`
	TotalHoldingsScanned  int             `json:"totalHoldingsScanned"`
	MatchingHoldingsFound int             `json:"matchingHoldingsFound"`
	SelectionRule         string          `json:"selectionRule"`
	Error                 string          `json:"error"`
}

// ConsumeRequest asks the backend to consume both inbound transfers of an
// add-liquidity request and mint the LP position.
type ConsumeRequest struct {
	RequestID     string `json:"requestId"`
	PoolCid       string `json:"poolCid"`
	MaxAgeSeconds int    `json:"maxAgeSeconds,omitempty"`
}

// ConsumeResponse is the settlement result.
type ConsumeResponse struct {
	RequestID      string          `json:"requestId"`
	PoolCid        string          `json:"poolCid"`
	NewPoolCid     string          `json:"newPoolCid"`
	ProviderParty  string          `json:"providerParty"`
	TiCidA         string          `json:"tiCidA"`
	TiCidB         string          `json:"tiCidB"`
	AmountA        decimal.Decimal `json:"amountA"`
	AmountB        decimal.Decimal `json:"amountB"`
	LpMinted       decimal.Decimal `json:"lpMinted"`
	NewReserveA    decimal.Decimal `json:"newReserveA"`
	NewReserveB    decimal.Decimal `json:"newReserveB"`
	LedgerUpdateID string          `json:"ledgerUpdateId"`
	ExecuteStatus  string          `json:"executeStatus"`
}

// InspectResponse describes what the backend currently sees for a request.
type InspectResponse struct {
	RequestID        string `json:"requestId"`
	PoolCid          string `json:"poolCid"`
	ProviderParty    string `json:"providerParty"`
	TiCidA           string `json:"tiCidA"`
	TiCidB           string `json:"tiCidB"`
	MemoRaw          string `json:"memoRaw"`
	Deadline         string `json:"deadline"`
	DeadlineExpired  bool   `json:"deadlineExpired"`
	PoolStatus       string `json:"poolStatus"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

// InboundReady reports whether both inbound transfer instructions are visible.
func (r InspectResponse) InboundReady() bool {
	return r.TiCidA != "" && r.TiCidB != ""
}

// apiResponse is the envelope used by the liquidity endpoints.
type apiResponse[T any] struct {
	Ok        bool            `json:"ok"`
	RequestID string          `json:"requestId"`
	Result    T               `json:"result"`
	Error     json.RawMessage `json:"error"`
}
