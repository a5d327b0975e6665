package flow

import (
	"context"
	"testing"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

func suggestorConfig() config.SuggestorConfig {
	return config.SuggestorConfig{
		LLM:               config.LLMConfig{Model: "gpt-4o-mini", Temperature: 0.7},
		Enabled:           true,
		MinSuggestiveness: 0.3,
	}
}

func suggestorProfile(suggestiveness float64) *models.UserProfile {
	return &models.UserProfile{
		UserID:              7,
		UserName:            "Dana",
		HealthGoals:         models.HealthGoals{DailyStepsGoal: 10000},
		CoachingPreferences: models.CoachingPreferences{Suggestiveness: suggestiveness, Tone: "encouraging"},
	}
}

func answeredConversation() []models.Message {
	return []models.Message{
		msg(models.RoleUser, "How many steps did I take this week?"),
		msg(models.RoleAssistant, "You took 58,200 steps this week."),
	}
}

func TestSuggestAppendsNudge(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"suggestion":"You are 1,800 steps short of your weekly goal. A short evening walk would close the gap.","include_suggestion":true,"reasoning":"below goal"}`,
	}}
	suggestor := NewSuggestor(mock, suggestorConfig())

	got := suggestor.Suggest(context.Background(), answeredConversation(), suggestorProfile(0.8), false)
	if got == "" {
		t.Fatal("expected a suggestion")
	}
	if len(mock.StructuredCalls) != 1 {
		t.Errorf("expected 1 model call, got %d", len(mock.StructuredCalls))
	}
}

func TestSuggestGates(t *testing.T) {
	tests := []struct {
		name               string
		messages           []models.Message
		profile            *models.UserProfile
		needsClarification bool
	}{
		{name: "clarification turn", messages: answeredConversation(), profile: suggestorProfile(0.8), needsClarification: true},
		{name: "no profile", messages: answeredConversation()},
		{name: "no messages", profile: suggestorProfile(0.8)},
		{name: "last message not assistant", messages: []models.Message{msg(models.RoleUser, "hi")}, profile: suggestorProfile(0.8)},
		{name: "low suggestiveness", messages: answeredConversation(), profile: suggestorProfile(0.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockGenAIClient{}
			suggestor := NewSuggestor(mock, suggestorConfig())

			if got := suggestor.Suggest(context.Background(), tt.messages, tt.profile, tt.needsClarification); got != "" {
				t.Errorf("expected no suggestion, got %q", got)
			}
			if len(mock.StructuredCalls) != 0 {
				t.Errorf("expected gate to skip the model call, got %d calls", len(mock.StructuredCalls))
			}
		})
	}
}

func TestSuggestUsesPlainTextResponse(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		"A ten minute stretch before bed could improve tonight's sleep.",
	}}
	suggestor := NewSuggestor(mock, suggestorConfig())

	got := suggestor.Suggest(context.Background(), answeredConversation(), suggestorProfile(0.8), false)
	if got != "A ten minute stretch before bed could improve tonight's sleep." {
		t.Errorf("expected the raw text as the suggestion, got %q", got)
	}
}

func TestSuggestModelOptOut(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"suggestion":"","include_suggestion":false,"reasoning":"nothing useful to add"}`,
	}}
	suggestor := NewSuggestor(mock, suggestorConfig())

	if got := suggestor.Suggest(context.Background(), answeredConversation(), suggestorProfile(0.8), false); got != "" {
		t.Errorf("expected model opt-out to suppress the nudge, got %q", got)
	}
}

func TestSuggestFailureIsSilent(t *testing.T) {
	mock := &MockGenAIClient{StructuredErr: context.DeadlineExceeded}
	suggestor := NewSuggestor(mock, suggestorConfig())

	if got := suggestor.Suggest(context.Background(), answeredConversation(), suggestorProfile(0.8), false); got != "" {
		t.Errorf("expected generation failure to yield no suggestion, got %q", got)
	}
}

func TestParseSuggestionShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "direct object",
			raw:  `{"suggestion":"Take a walk.","include_suggestion":true}`,
			want: "Take a walk.",
		},
		{
			name: "nested structured_response",
			raw:  `{"structured_response":{"suggestion":"Stretch before bed.","include_suggestion":true}}`,
			want: "Stretch before bed.",
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"suggestion\":\"Drink water.\",\"include_suggestion\":true}\n```",
			want: "Drink water.",
		},
		{
			name: "plain text used as-is",
			raw:  "Try a short evening walk to close your step gap.",
			want: "Try a short evening walk to close your step gap.",
		},
		{
			name: "json without a suggestion field",
			raw:  `{"reasoning":"nothing useful to add"}`,
			want: "",
		},
		{
			name: "empty",
			raw:  "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSuggestion(tt.raw)
			switch {
			case tt.want == "" && got != nil:
				t.Errorf("expected nil, got %+v", got)
			case tt.want != "" && (got == nil || got.Suggestion != tt.want):
				t.Errorf("expected suggestion %q, got %+v", tt.want, got)
			}
		})
	}
}
