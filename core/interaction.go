package core

import (
	"encoding/json"
	"fmt"
)

// Interaction kinds. The kind doubles as the record type on the wire.
const (
	KindTaskDefinition = "TaskDefinition"
	KindAskOracle      = "AskOracle"
	KindOracleResponse = "OracleResponse"
	KindToolCall       = "ToolCall"
	KindToolResult     = "ToolResult"
	KindTaskResult     = "TaskResult"
	KindTaskChain      = "TaskChain"
	KindAgentCall      = "AgentCall"
	KindAgentResult    = "AgentResult"
	KindWaiting        = "Waiting"
)

// Interaction is one persisted step of an agent's work. Step performs a single
// atomic transition: it may append interactions through the StepContext and
// reports whether the branch has more work.
//
// The set is sealed by an unexported marker; host applications add kinds by
// embedding InteractionBase and registering a constructor with the registry.
type Interaction interface {
	Kind() string
	Base() *InteractionBase
	Step(sc *StepContext) (bool, error)
	isInteraction()
}

// InteractionBase is the header shared by every interaction.
type InteractionBase struct {
	Identified
	Branch    string   `json:"branch,omitempty"`
	AgentID   string   `json:"agent_id,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
	// Completed marks a branch tail whose Step reported no further work.
	Completed bool `json:"completed,omitempty"`
}

// NewInteractionBase returns a header with a fresh identity.
func NewInteractionBase() InteractionBase {
	return InteractionBase{Identified: NewIdentified()}
}

// Base returns the header.
func (b *InteractionBase) Base() *InteractionBase { return b }

func (b *InteractionBase) isInteraction() {}

// ensureIdentity assigns an identity to interactions built as literals.
func ensureIdentity(it Interaction) {
	b := it.Base()
	if b.ID == "" {
		b.Identified = NewIdentified()
	}
}

// Record is the flat serialized form of any persisted entity.
type Record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeInteraction serializes an interaction into a Record.
func EncodeInteraction(it Interaction) (Record, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", it.Kind(), err)
	}

	return Record{Type: it.Kind(), Data: data}, nil
}

// newBuiltinInteraction returns a zero value for a builtin kind.
func newBuiltinInteraction(kind string) (Interaction, bool) {
	switch kind {
	case KindTaskDefinition:
		return &TaskDefinition{}, true
	case KindAskOracle:
		return &AskOracle{}, true
	case KindOracleResponse:
		return &OracleResponse{}, true
	case KindToolCall:
		return &ToolCall{}, true
	case KindToolResult:
		return &ToolResult{}, true
	case KindTaskResult:
		return &TaskResult{}, true
	case KindTaskChain:
		return &TaskChain{}, true
	case KindAgentCall:
		return &AgentCall{}, true
	case KindAgentResult:
		return &AgentResult{}, true
	case KindWaiting:
		return &Waiting{}, true
	default:
		return nil, false
	}
}

// DecodeInteraction rebuilds an interaction from its record. Builtin kinds are
// always known; custom kinds must be registered. A nil registry decodes
// builtin kinds only.
func (r *Registry) DecodeInteraction(rec Record) (Interaction, error) {
	it, ok := newBuiltinInteraction(rec.Type)
	if !ok {
		var ctor InteractionFactory
		if r != nil {
			ctor = r.interactions[rec.Type]
		}

		if ctor == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInteraction, rec.Type)
		}

		it = ctor()
	}

	if err := json.Unmarshal(rec.Data, it); err != nil {
		return nil, fmt.Errorf("decode %s: %w", rec.Type, err)
	}

	return it, nil
}
