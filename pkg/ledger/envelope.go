package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultApplicationID identifies this client to the ledger.
const DefaultApplicationID = "clearportx"

// Envelope is the provider-agnostic transaction handed to a wallet for
// signing and submission.
type Envelope struct {
	CommandID                    string              `json:"commandId"`
	WorkflowID                   string              `json:"workflowId"`
	ApplicationID                string              `json:"applicationId"`
	ActAs                        []string            `json:"actAs"`
	ReadAs                       []string            `json:"readAs,omitempty"`
	Commands                     []Command           `json:"commands"`
	DisclosedContracts           []DisclosedContract `json:"disclosedContracts,omitempty"`
	PackageIDSelectionPreference []string            `json:"packageIdSelectionPreference,omitempty"`
	SynchronizerID               string              `json:"synchronizerId,omitempty"`
	DeduplicationKey             string              `json:"deduplicationKey,omitempty"`
}

// EnvelopeRequest is the logical submission an Envelope is built from.
type EnvelopeRequest struct {
	Commands                     []Command
	ActAs                        []string
	ReadAs                       []string
	Memo                         string
	DeduplicationKey             string
	DisclosedContracts           []DisclosedContract
	PackageIDSelectionPreference []string
	SynchronizerID               string
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// Builder turns EnvelopeRequests into Envelopes. It has no side effects
// beyond the values it returns.
type Builder struct {
	applicationID string
	newID         func() string
	now           func() time.Time
}

// WithApplicationID overrides DefaultApplicationID.
func WithApplicationID(id string) BuilderOption {
	return func(b *Builder) {
		if id != "" {
			b.applicationID = id
		}
	}
}

// WithIDGenerator overrides the random command id source.
func WithIDGenerator(fn func() string) BuilderOption {
	return func(b *Builder) {
		b.newID = fn
	}
}

// WithClock overrides the clock used for workflow ids.
func WithClock(fn func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = fn
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		applicationID: DefaultApplicationID,
		newID:         func() string { return uuid.New().String() },
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces an Envelope from req. When a deduplication key is supplied
// it becomes the command id, so repeated builds of the same logical
// operation are idempotent at the ledger; otherwise a fresh id is generated.
func (b *Builder) Build(req EnvelopeRequest) (*Envelope, error) {
	if len(req.Commands) == 0 {
		return nil, fmt.Errorf("commands is required")
	}
	actAs := compactParties(req.ActAs)
	if len(actAs) == 0 {
		return nil, fmt.Errorf("actAs is required")
	}

	commands, err := EmbedMemo(req.Commands, req.Memo)
	if err != nil {
		return nil, err
	}
	if req.Memo == "" {
		// EmbedMemo hands back the caller's slice when there is nothing to write.
		if commands, err = CopyCommands(req.Commands); err != nil {
			return nil, err
		}
	}

	env := &Envelope{
		ApplicationID:    b.applicationID,
		ActAs:            actAs,
		ReadAs:           compactParties(req.ReadAs),
		Commands:         commands,
		SynchronizerID:   req.SynchronizerID,
		DeduplicationKey: req.DeduplicationKey,
	}

	if req.DeduplicationKey != "" {
		env.CommandID = req.DeduplicationKey
		env.WorkflowID = "wf-" + req.DeduplicationKey
	} else {
		env.CommandID = "loop-" + b.newID()
		env.WorkflowID = fmt.Sprintf("wf-%d", b.now().UnixMilli())
	}

	if len(req.DisclosedContracts) > 0 {
		env.DisclosedContracts = make([]DisclosedContract, 0, len(req.DisclosedContracts))
		for _, dc := range req.DisclosedContracts {
			copied, err := CopyCommands([]Command{Command(dc)})
			if err != nil {
				return nil, err
			}
			env.DisclosedContracts = append(env.DisclosedContracts, DisclosedContract(copied[0]))
		}
	}
	if len(req.PackageIDSelectionPreference) > 0 {
		env.PackageIDSelectionPreference = slices.Clone(req.PackageIDSelectionPreference)
	}

	return env, nil
}

// compactParties drops blank entries and duplicates while keeping order.
func compactParties(parties []string) []string {
	if len(parties) == 0 {
		return nil
	}
	out := make([]string, 0, len(parties))
	seen := make(map[string]struct{}, len(parties))
	for _, p := range parties {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
