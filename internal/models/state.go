// Package models defines thread state structures for the dialogue engine.
package models

import "time"

// Message is one role-tagged entry in a conversation history.
type Message struct {
	Role      string    `json:"role"` // "system", "user", or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationState is the per-thread summary carried across turns.
// MentionedMetrics accumulates and never shrinks within a thread; TurnCount
// is monotonic. Owned by the turn router and mutated once per turn by the
// intent classifier's delta.
type ConversationState struct {
	CurrentTopic        string          `json:"current_topic,omitempty"`
	MentionedMetrics    map[string]bool `json:"mentioned_metrics,omitempty"`
	TurnCount           int             `json:"turn_count"`
	PriorIntent         IntentLabel     `json:"prior_intent,omitempty"`
	UserExplicitlyAsked string          `json:"user_explicitly_asked,omitempty"`
}

// Clone returns a deep copy so a node can build a delta without mutating the
// state owned by the router.
func (cs *ConversationState) Clone() *ConversationState {
	if cs == nil {
		return &ConversationState{MentionedMetrics: map[string]bool{}}
	}
	out := *cs
	out.MentionedMetrics = make(map[string]bool, len(cs.MentionedMetrics))
	for k, v := range cs.MentionedMetrics {
		out.MentionedMetrics[k] = v
	}
	return &out
}

// MetricsList returns the mentioned metrics as a sorted-insensitive slice for
// serialization into prompts.
func (cs *ConversationState) MetricsList() []string {
	if cs == nil {
		return nil
	}
	out := make([]string, 0, len(cs.MentionedMetrics))
	for m := range cs.MentionedMetrics {
		out = append(out, m)
	}
	return out
}

// ThreadState is the persisted envelope for one conversation thread, keyed
// by an opaque thread identifier.
type ThreadState struct {
	ThreadID          string             `json:"thread_id"`
	UserID            int64              `json:"user_id"`
	ConversationState *ConversationState `json:"conversation_state,omitempty"`
	Messages          []Message          `json:"messages,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NodeName identifies a node in the turn router's state machine.
type NodeName string

// Router node names.
const (
	NodeIntent           NodeName = "INTENT"
	NodeClarification    NodeName = "CLARIFICATION"
	NodeStaticRespond    NodeName = "STATIC_RESPOND"
	NodeDataAvailability NodeName = "DATA_AVAILABILITY"
	NodePlanner          NodeName = "PLANNER"
	NodeExecution        NodeName = "EXECUTION"
	NodeSuggestor        NodeName = "SUGGESTOR"
)

// StateDelta is the named state update a node returns. The router never
// mutates turn state outside the delta returned by the active node.
type StateDelta struct {
	Node                  NodeName           `json:"node"`
	Response              string             `json:"response,omitempty"`
	IntentMetadata        *IntentMetadata    `json:"intent_metadata,omitempty"`
	ConversationState     *ConversationState `json:"conversation_state,omitempty"`
	ProcessPlan           *ProcessPlan       `json:"process_plan,omitempty"`
	ExecutionResult       *ExecutionResponse `json:"execution_result,omitempty"`
	Grounding             *GroundingMetadata `json:"grounding,omitempty"`
	Messages              []Message          `json:"messages,omitempty"`
	NeedsClarification    bool               `json:"needs_clarification,omitempty"`
	ClarificationQuestion string             `json:"clarification_question,omitempty"`
	SuggestionIncluded    bool               `json:"suggestion_included,omitempty"`
	PlannerAttempts       int                `json:"planner_attempts,omitempty"`
	Empty                 bool               `json:"empty,omitempty"` // node ran and chose to contribute nothing
}

// TurnResult is the terminal outcome of one routed turn: the final combined
// response string plus the ordered node deltas for observability.
type TurnResult struct {
	TurnID             string       `json:"turn_id"`
	ThreadID           string       `json:"thread_id"`
	Response           string       `json:"response"`
	Intent             IntentLabel  `json:"intent,omitempty"`
	Confidence         float64      `json:"confidence,omitempty"`
	NeedsClarification bool         `json:"needs_clarification"`
	SuggestionIncluded bool         `json:"suggestion_included"`
	Deltas             []StateDelta `json:"deltas,omitempty"`
}
