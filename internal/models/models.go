// Package models defines the core data structures for the fitbit-bot dialogue engine.
//
// It includes the routing types shared across the turn router, intent
// classifier, planner, and execution orchestrator.
package models

import (
	"errors"
	"strconv"
	"strings"
)

// IntentLabel identifies what the user is asking for on a turn.
type IntentLabel string

const (
	// IntentMetricRetrieval means the user wants to see data.
	IntentMetricRetrieval IntentLabel = "METRIC_RETRIEVAL"
	// IntentCorrelationAnalysis means the user wants to understand connections between metrics.
	IntentCorrelationAnalysis IntentLabel = "CORRELATION_ANALYSIS"
	// IntentCoachingRequest means the user wants actionable advice.
	IntentCoachingRequest IntentLabel = "COACHING_REQUEST"
	// IntentBenchmarkEvaluation means the user wants comparisons against normal ranges.
	IntentBenchmarkEvaluation IntentLabel = "BENCHMARK_EVALUATION"
	// IntentDataAvailability covers questions about what data exists.
	IntentDataAvailability IntentLabel = "DATA_AVAILABILITY"
	// IntentOutOfScope covers requests unrelated to health or fitness.
	IntentOutOfScope IntentLabel = "OUT_OF_SCOPE"
	// IntentGreeting covers greetings and capability checks.
	IntentGreeting IntentLabel = "GREETING"
	// IntentUnclear means the request may be health related but is ambiguous.
	IntentUnclear IntentLabel = "UNCLEAR"
)

// IsValidIntentLabel checks if the given intent label is supported.
func IsValidIntentLabel(l IntentLabel) bool {
	switch l {
	case IntentMetricRetrieval, IntentCorrelationAnalysis, IntentCoachingRequest,
		IntentBenchmarkEvaluation, IntentDataAvailability, IntentOutOfScope,
		IntentGreeting, IntentUnclear:
		return true
	default:
		return false
	}
}

// DataSource identifies where an answer's evidence should come from.
type DataSource string

const (
	// SourceUserMetrics queries the time-series metric tables (steps, HR, sleep).
	SourceUserMetrics DataSource = "USER_METRICS"
	// SourceUserProfile looks up static user attributes (name, age, goals).
	SourceUserProfile DataSource = "USER_PROFILE"
	// SourceKnowledgeBase retrieves general health context (e.g. normal HR ranges).
	SourceKnowledgeBase DataSource = "KNOWLEDGE_BASE"
	// SourceCalendar checks the user's schedule.
	SourceCalendar DataSource = "CALENDAR"
	// SourceNone means no data lookup is required.
	SourceNone DataSource = "NONE"
)

// ResponseType identifies the shape of answer a turn should produce.
type ResponseType string

const (
	// ResponseDataLookup is a direct answer with numbers.
	ResponseDataLookup ResponseType = "DATA_LOOKUP"
	// ResponseTrendAnalysis is an analytical narrative.
	ResponseTrendAnalysis ResponseType = "TREND_ANALYSIS"
	// ResponseActionableAdvice is a specific, grounded suggestion.
	ResponseActionableAdvice ResponseType = "ACTIONABLE_ADVICE"
	// ResponseBenchmarkInfo is a context-aware comparison.
	ResponseBenchmarkInfo ResponseType = "BENCHMARK_INFO"
	// ResponseHelpMessage is a canned response.
	ResponseHelpMessage ResponseType = "HELP_MESSAGE"
	// ResponseClarification means the system needs to ask a question.
	ResponseClarification ResponseType = "CLARIFICATION"
)

// LowConfidenceOverride is the confidence floor below which an intent is
// always treated as needing clarification, regardless of what the classifier
// reported.
const LowConfidenceOverride = 0.6

// DefaultPlanConfidence is the confidence assigned to plans whose confidence
// field is missing or unparsable.
const DefaultPlanConfidence = 0.7

// Error variables for better error handling and testability.
var (
	ErrEmptyThreadID    = errors.New("thread id cannot be empty")
	ErrEmptyUserMessage = errors.New("user message cannot be empty")
	ErrNoIntentMetadata = errors.New("no intent metadata produced")
	ErrStructuredParse  = errors.New("structured output could not be parsed")
)

// IntentMetadata carries the routing signals produced by the intent
// classifier for a single turn. It is created once per turn, normalized on
// construction, and immutable thereafter.
type IntentMetadata struct {
	Intent             IntentLabel  `json:"intent"`
	Confidence         float64      `json:"confidence"`
	SuggestedSources   []DataSource `json:"suggested_sources"`
	ResponseType       ResponseType `json:"response_type"`
	MentionedMetrics   []string     `json:"mentioned_metrics,omitempty"`
	CurrentTopic       string       `json:"current_topic,omitempty"`
	IsFollowup         bool         `json:"is_followup"`
	NeedsClarification bool         `json:"needs_clarification"`
}

// Normalize enforces the routing policy on classifier output:
//  1. Minimum required sources for the intent are injected if absent.
//  2. GREETING and OUT_OF_SCOPE force sources to {NONE}.
//  3. Sources are deduplicated and ordered by SourceOrder.
//  4. If the metadata is not a clarification request, the response type is
//     forced to the canonical type for the intent.
//  5. Confidence below LowConfidenceOverride forces NeedsClarification.
func (m *IntentMetadata) Normalize() {
	got := make(map[DataSource]bool, len(m.SuggestedSources))
	for _, s := range m.SuggestedSources {
		got[s] = true
	}
	for _, s := range IntentMinSources[m.Intent] {
		got[s] = true
	}

	if m.Intent == IntentGreeting || m.Intent == IntentOutOfScope {
		got = map[DataSource]bool{SourceNone: true}
	}

	ordered := make([]DataSource, 0, len(got))
	for _, s := range SourceOrder {
		if got[s] {
			ordered = append(ordered, s)
		}
	}
	m.SuggestedSources = ordered

	if !m.NeedsClarification {
		if m.ResponseType == ResponseClarification {
			m.NeedsClarification = true
		} else {
			m.ResponseType = CanonicalResponseType(m.Intent)
		}
	}

	if m.Confidence < LowConfidenceOverride {
		m.NeedsClarification = true
	}
}

// CanonicalResponseType returns the expected response type for an intent,
// defaulting to DATA_LOOKUP for unknown labels.
func CanonicalResponseType(intent IntentLabel) ResponseType {
	if rt, ok := IntentResponseTypes[intent]; ok {
		return rt
	}
	return ResponseDataLookup
}

// Aggregation describes how a metric series should be reduced.
type Aggregation string

const (
	AggregationRaw Aggregation = "raw"
	AggregationSum Aggregation = "sum"
	AggregationAvg Aggregation = "avg"
	AggregationMin Aggregation = "min"
	AggregationMax Aggregation = "max"
)

// Granularity describes the bucketing of a time range.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// TimeRange bounds the data a plan intends to fetch. Dates are ISO
// "YYYY-MM-DD" strings so the planner output is machine-checkable without
// timezone ambiguity.
type TimeRange struct {
	StartDate   string      `json:"start_date,omitempty"`
	EndDate     string      `json:"end_date,omitempty"`
	Granularity Granularity `json:"granularity,omitempty"`
}

// IsComplete reports whether both endpoints of the range are set.
func (tr *TimeRange) IsComplete() bool {
	return tr != nil && tr.StartDate != "" && tr.EndDate != ""
}

// MetricSpec names a metric and how to aggregate it.
type MetricSpec struct {
	Name        string      `json:"name"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Description string      `json:"description,omitempty"`
}

// PlanStep is one named action in an execution plan.
type PlanStep struct {
	StepID string `json:"step_id"`
	Action string `json:"action"`
	Notes  string `json:"notes,omitempty"`
}

// ProcessPlan is the structured contract between the planner and the
// execution orchestrator. It is validated before acceptance.
type ProcessPlan struct {
	NeedsClarification    bool          `json:"needs_clarification"`
	ClarificationQuestion string        `json:"clarification_question,omitempty"`
	ResponseType          ResponseType  `json:"response_type,omitempty"`
	SelectedSources       []DataSource  `json:"selected_sources"`
	Metrics               []MetricSpec  `json:"metrics,omitempty"`
	TimeRange             *TimeRange    `json:"time_range,omitempty"`
	Steps                 []PlanStep    `json:"steps,omitempty"`
	Confidence            PlanConfidence `json:"confidence"`
}

// HasSource reports whether the plan selects the given data source.
func (p *ProcessPlan) HasSource(src DataSource) bool {
	for _, s := range p.SelectedSources {
		if s == src {
			return true
		}
	}
	return false
}

// RouteTags returns observability tags describing how the plan will execute.
func (p *ProcessPlan) RouteTags() []string {
	var tags []string
	if p.NeedsClarification {
		tags = append(tags, "needs_clarification")
	}
	if p.HasSource(SourceUserMetrics) {
		tags = append(tags, "uses_sql")
	}
	if p.HasSource(SourceKnowledgeBase) {
		tags = append(tags, "uses_kb")
	}
	return tags
}

// PlanConfidence is a confidence score normalized on JSON decode. Models
// occasionally report percentages ("85") or quoted numbers instead of a
// [0,1] float; all such inputs decode to a clamped [0,1] value.
type PlanConfidence float64

// UnmarshalJSON implements normalization for confidence values:
// v in [0,1] passes through; v in (1,100] is divided by 100; v < 0 clamps
// to 0; anything else falls back to DefaultPlanConfidence.
func (c *PlanConfidence) UnmarshalJSON(data []byte) error {
	*c = NormalizeConfidence(strings.Trim(string(data), `"`))
	return nil
}

// NormalizeConfidence maps a raw confidence token to a [0,1] score following
// the planner contract. Unparsable input yields DefaultPlanConfidence.
func NormalizeConfidence(raw string) PlanConfidence {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return DefaultPlanConfidence
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return DefaultPlanConfidence
	}
	switch {
	case v < 0:
		return 0
	case v <= 1:
		return PlanConfidence(v)
	case v <= 100:
		return PlanConfidence(v / 100)
	default:
		return DefaultPlanConfidence
	}
}

// ExecutionResponse is the structured output of the execution orchestrator.
// It is terminal for a turn.
type ExecutionResponse struct {
	Answer                string  `json:"answer"`
	Confidence            float64 `json:"confidence"`
	NeedsClarification    bool    `json:"needs_clarification"`
	ClarificationQuestion string  `json:"clarification_question,omitempty"`
}

// GroundingMetadata captures the proof that the execution agent actually
// retrieved data, for auditing and for the clarification node.
type GroundingMetadata struct {
	SQLQueries            []string `json:"sql_queries,omitempty"`
	TableNames            []string `json:"table_names,omitempty"`
	Confidence            float64  `json:"confidence"`
	ClarificationQuestion string   `json:"clarification_question,omitempty"`
}

// SuggestionResponse is the structured output of the suggestion generator.
type SuggestionResponse struct {
	Suggestion        string `json:"suggestion"`
	IncludeSuggestion bool   `json:"include_suggestion"`
	Reasoning         string `json:"reasoning,omitempty"`
}
