package liquidity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/wallet"
)

// State is a step of the add-liquidity saga.
type State string

const (
	StateInit          State = "INIT"
	StateResolvingPool State = "RESOLVING_POOL"
	StatePreparingA    State = "PREPARING_A"
	StateSubmittingA   State = "SUBMITTING_A"
	StatePreparingB    State = "PREPARING_B"
	StateSubmittingB   State = "SUBMITTING_B"
	StateConsuming     State = "CONSUMING"
	StateDone          State = "DONE"

	StateFailedResolve State = "FAILED_RESOLVE"
	StateFailedA       State = "FAILED_A"
	StateFailedB       State = "FAILED_B"
	StateFailedConsume State = "FAILED_CONSUME"
)

// Terminal reports whether no further step follows s.
func (s State) Terminal() bool {
	return s == StateDone || s.Failed()
}

// Failed reports whether s is a terminal failure.
func (s State) Failed() bool {
	switch s {
	case StateFailedResolve, StateFailedA, StateFailedB, StateFailedConsume:
		return true
	}
	return false
}

// Leg names one of the two inbound transfers.
type Leg string

const (
	LegA Leg = "A"
	LegB Leg = "B"
)

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// LegState tracks one inbound transfer.
type LegState struct {
	Leg             Leg
	InstrumentAdmin string
	InstrumentID    string
	Amount          decimal.Decimal
	DedupKey        string
	Memo            string
	Result          *wallet.SubmitResult
	Error           *domain.DomainError
}

// Succeeded reports whether the leg landed on the ledger.
func (l LegState) Succeeded() bool {
	return l.Error == nil && l.Result != nil && l.Result.Succeeded()
}

// SagaState is the in-memory record of one add-liquidity request. A failed
// leg B leaves LegA succeeded; nothing is compensated.
type SagaState struct {
	RequestID string
	PoolID    string
	PoolCid   string
	Party     string
	Operator  string
	Deadline  time.Time

	State   State
	History []Transition

	LegA LegState
	LegB LegState

	Readiness   *backend.InspectResponse
	Consume     *backend.ConsumeResponse
	Diagnostics *backend.InspectResponse
	Refresh     *RefreshOutcome

	Error         *domain.DomainError
	Message       string
	UserCancelled bool
}

func (s *SagaState) advance(to State, at time.Time) {
	s.History = append(s.History, Transition{From: s.State, To: to, At: at})
	s.State = to
}

// snapshot returns a copy safe to hand to observers.
func (s *SagaState) snapshot() SagaState {
	c := *s
	c.History = append([]Transition(nil), s.History...)
	return c
}
