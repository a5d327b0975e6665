package models

import (
	"encoding/json"
	"testing"
)

func TestNormalizeConfidence(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want PlanConfidence
	}{
		{"in range", "0.85", 0.85},
		{"zero", "0", 0},
		{"one", "1", 1},
		{"percentage", "85", 0.85},
		{"hundred", "100", 1},
		{"just above one", "1.5", 0.015},
		{"negative clamps", "-0.3", 0},
		{"above hundred falls back", "150", DefaultPlanConfidence},
		{"unparsable falls back", "high", DefaultPlanConfidence},
		{"empty falls back", "", DefaultPlanConfidence},
		{"null falls back", "null", DefaultPlanConfidence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeConfidence(tc.raw)
			if got != tc.want {
				t.Errorf("NormalizeConfidence(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestPlanConfidenceUnmarshal(t *testing.T) {
	var p ProcessPlan
	if err := json.Unmarshal([]byte(`{"confidence": "90"}`), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Confidence != 0.9 {
		t.Errorf("expected quoted percentage to normalize to 0.9, got %v", p.Confidence)
	}

	if err := json.Unmarshal([]byte(`{"confidence": 0.4}`), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Confidence != 0.4 {
		t.Errorf("expected 0.4, got %v", p.Confidence)
	}
}

func TestIntentMetadataNormalize_LowConfidenceOverride(t *testing.T) {
	m := IntentMetadata{
		Intent:       IntentMetricRetrieval,
		Confidence:   0.5,
		ResponseType: ResponseDataLookup,
	}
	m.Normalize()
	if !m.NeedsClarification {
		t.Error("confidence below 0.6 must force needs_clarification")
	}
}

func TestIntentMetadataNormalize_StaticIntentsForceNone(t *testing.T) {
	for _, intent := range []IntentLabel{IntentGreeting, IntentOutOfScope} {
		m := IntentMetadata{
			Intent:           intent,
			Confidence:       1.0,
			SuggestedSources: []DataSource{SourceUserMetrics, SourceKnowledgeBase},
		}
		m.Normalize()
		if len(m.SuggestedSources) != 1 || m.SuggestedSources[0] != SourceNone {
			t.Errorf("%s: expected sources {NONE}, got %v", intent, m.SuggestedSources)
		}
	}
}

func TestIntentMetadataNormalize_InjectsMinimumSources(t *testing.T) {
	m := IntentMetadata{
		Intent:           IntentCoachingRequest,
		Confidence:       0.95,
		SuggestedSources: []DataSource{SourceKnowledgeBase},
	}
	m.Normalize()
	if !containsSource(m.SuggestedSources, SourceUserMetrics) {
		t.Errorf("coaching request must inject USER_METRICS, got %v", m.SuggestedSources)
	}
	// Normalized sources must follow the priority order.
	if m.SuggestedSources[0] != SourceUserMetrics {
		t.Errorf("expected USER_METRICS first per source order, got %v", m.SuggestedSources)
	}
}

func TestIntentMetadataNormalize_DeduplicatesSources(t *testing.T) {
	m := IntentMetadata{
		Intent:           IntentMetricRetrieval,
		Confidence:       0.9,
		SuggestedSources: []DataSource{SourceUserMetrics, SourceUserMetrics, SourceUserProfile},
	}
	m.Normalize()
	seen := map[DataSource]int{}
	for _, s := range m.SuggestedSources {
		seen[s]++
	}
	for s, n := range seen {
		if n > 1 {
			t.Errorf("source %s appears %d times after normalization", s, n)
		}
	}
}

func TestIntentMetadataNormalize_ResponseTypeForcedToCanonical(t *testing.T) {
	m := IntentMetadata{
		Intent:       IntentBenchmarkEvaluation,
		Confidence:   0.9,
		ResponseType: ResponseDataLookup,
	}
	m.Normalize()
	if m.ResponseType != ResponseBenchmarkInfo {
		t.Errorf("expected canonical BENCHMARK_INFO, got %s", m.ResponseType)
	}
}

func TestIntentMetadataNormalize_ClarificationResponseTypeFlips(t *testing.T) {
	m := IntentMetadata{
		Intent:       IntentMetricRetrieval,
		Confidence:   0.9,
		ResponseType: ResponseClarification,
	}
	m.Normalize()
	if !m.NeedsClarification {
		t.Error("CLARIFICATION response type must set needs_clarification")
	}
	if m.ResponseType != ResponseClarification {
		t.Errorf("response type should remain CLARIFICATION, got %s", m.ResponseType)
	}
}

func TestTimeRangeIsComplete(t *testing.T) {
	var nilRange *TimeRange
	if nilRange.IsComplete() {
		t.Error("nil range is not complete")
	}
	if (&TimeRange{StartDate: "2016-04-10"}).IsComplete() {
		t.Error("range without end date is not complete")
	}
	if !(&TimeRange{StartDate: "2016-04-10", EndDate: "2016-04-10"}).IsComplete() {
		t.Error("range with both endpoints is complete")
	}
}

func TestConversationStateClone(t *testing.T) {
	orig := &ConversationState{
		CurrentTopic:     "activity",
		MentionedMetrics: map[string]bool{"steps": true},
		TurnCount:        3,
	}
	cp := orig.Clone()
	cp.MentionedMetrics["heart_rate"] = true
	cp.TurnCount++
	if orig.MentionedMetrics["heart_rate"] {
		t.Error("clone must not share the metrics set with the original")
	}
	if orig.TurnCount != 3 {
		t.Error("clone must not mutate the original turn count")
	}

	var nilState *ConversationState
	if got := nilState.Clone(); got == nil || got.MentionedMetrics == nil {
		t.Error("cloning nil state must return a usable empty state")
	}
}

func TestProcessPlanRouteTags(t *testing.T) {
	p := ProcessPlan{
		NeedsClarification: true,
		SelectedSources:    []DataSource{SourceUserMetrics, SourceKnowledgeBase},
	}
	tags := p.RouteTags()
	want := []string{"needs_clarification", "uses_sql", "uses_kb"}
	if len(tags) != len(want) {
		t.Fatalf("expected %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tag %d: expected %s, got %s", i, want[i], tags[i])
		}
	}
}

func containsSource(sources []DataSource, target DataSource) bool {
	for _, s := range sources {
		if s == target {
			return true
		}
	}
	return false
}
