package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/models"
	"github.com/gutzcha/fitbit-bot/internal/store"
)

// TurnRouter drives one user turn through the node state machine: intent
// classification, then exactly one of clarification, static response, data
// availability, or the planner/execution path, optionally followed by the
// suggestor. State is mutated only through the deltas nodes return, and the
// thread is persisted once, at the end of a successful turn.
type TurnRouter struct {
	stateManager StateManager
	profiles     store.ProfileStore
	cfg          config.RouterConfig

	intent       *IntentClassifier
	static       *StaticResponder
	availability *DataAvailabilityNode
	clarifier    *Clarifier
	planner      *Planner
	executor     *Executor
	suggestor    *Suggestor // optional; nil disables the suggestion stage
}

// RouterDeps bundles the collaborators a TurnRouter needs.
type RouterDeps struct {
	StateManager StateManager
	Profiles     store.ProfileStore
	Intent       *IntentClassifier
	Static       *StaticResponder
	Availability *DataAvailabilityNode
	Clarifier    *Clarifier
	Planner      *Planner
	Executor     *Executor
	Suggestor    *Suggestor
}

func NewTurnRouter(deps RouterDeps, cfg config.RouterConfig) *TurnRouter {
	return &TurnRouter{
		stateManager: deps.StateManager,
		profiles:     deps.Profiles,
		cfg:          cfg,
		intent:       deps.Intent,
		static:       deps.Static,
		availability: deps.Availability,
		clarifier:    deps.Clarifier,
		planner:      deps.Planner,
		executor:     deps.Executor,
		suggestor:    deps.Suggestor,
	}
}

// HandleTurn routes one user message and returns the turn's outcome. On a
// node failure the turn yields the canned error response and the wrapped
// error; the persisted thread state is left untouched so a retry sees the
// same history.
func (r *TurnRouter) HandleTurn(ctx context.Context, threadID string, userID int64, userMessage string) (*models.TurnResult, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, models.ErrEmptyThreadID
	}
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, models.ErrEmptyUserMessage
	}

	turnID := uuid.NewString()
	result := &models.TurnResult{TurnID: turnID, ThreadID: threadID}
	slog.Info("TurnRouter.HandleTurn: turn started", "turnID", turnID, "threadID", threadID, "userID", userID)

	thread, err := r.stateManager.GetOrCreateThread(ctx, threadID, userID)
	if err != nil {
		return r.failTurn(result, fmt.Errorf("loading thread state: %w", err))
	}
	profile := r.loadProfile(ctx, userID)

	messages := append(append([]models.Message{}, thread.Messages...), models.Message{
		Role:      models.RoleUser,
		Content:   userMessage,
		Timestamp: time.Now(),
	})

	meta, convState, err := r.intent.Classify(ctx, messages, thread.ConversationState, profile)
	if err != nil {
		return r.failTurn(result, fmt.Errorf("intent node: %w", err))
	}
	result.Intent = meta.Intent
	result.Confidence = meta.Confidence
	result.Deltas = append(result.Deltas, models.StateDelta{
		Node:              models.NodeIntent,
		IntentMetadata:    meta,
		ConversationState: convState,
	})

	answer, err := r.routeAfterIntent(ctx, result, messages, meta, convState, profile, userID)
	if err != nil {
		return r.failTurn(result, err)
	}

	assistantMsg := models.Message{Role: models.RoleAssistant, Content: answer, Timestamp: time.Now()}
	messages = append(messages, assistantMsg)

	if r.suggestor != nil && !result.NeedsClarification {
		if suggestion := r.suggestor.Suggest(ctx, messages, profile, result.NeedsClarification); suggestion != "" {
			answer += "\n\n" + suggestion
			messages[len(messages)-1].Content = answer
			result.SuggestionIncluded = true
			result.Deltas = append(result.Deltas, models.StateDelta{
				Node:               models.NodeSuggestor,
				Response:           suggestion,
				SuggestionIncluded: true,
			})
		} else {
			result.Deltas = append(result.Deltas, models.StateDelta{Node: models.NodeSuggestor, Empty: true})
		}
	}
	result.Response = answer

	// Cap the persisted history so long-lived threads stay bounded.
	thread.Messages = TrimHistory(messages, r.cfg.MaxStoredMessages)
	thread.ConversationState = convState
	if err := r.stateManager.SaveThread(ctx, thread); err != nil {
		return r.failTurn(result, fmt.Errorf("saving thread state: %w", err))
	}

	slog.Info("TurnRouter.HandleTurn: turn complete",
		"turnID", turnID,
		"intent", result.Intent,
		"needsClarification", result.NeedsClarification,
		"suggestionIncluded", result.SuggestionIncluded)
	return result, nil
}

// routeAfterIntent picks and runs the terminal node for the turn, appending
// its delta and returning the answer text.
func (r *TurnRouter) routeAfterIntent(ctx context.Context, result *models.TurnResult, messages []models.Message, meta *models.IntentMetadata, convState *models.ConversationState, profile *models.UserProfile, userID int64) (string, error) {
	if meta.NeedsClarification || meta.Confidence < r.cfg.ConfidenceThreshold {
		return r.clarify(ctx, result, messages, meta, convState, profile, nil, nil)
	}

	switch meta.Intent {
	case models.IntentGreeting, models.IntentOutOfScope:
		answer := r.static.Respond(ctx, meta.Intent)
		result.Deltas = append(result.Deltas, models.StateDelta{Node: models.NodeStaticRespond, Response: answer})
		return answer, nil

	case models.IntentDataAvailability:
		answer, err := r.availability.Respond(ctx, messages, profile)
		if err != nil {
			return "", fmt.Errorf("data availability node: %w", err)
		}
		result.Deltas = append(result.Deltas, models.StateDelta{Node: models.NodeDataAvailability, Response: answer})
		return answer, nil
	}

	plan, attempts, err := r.planner.Plan(ctx, messages, meta, convState, profile)
	if err != nil {
		return "", fmt.Errorf("planner node: %w", err)
	}
	result.Deltas = append(result.Deltas, models.StateDelta{
		Node:            models.NodePlanner,
		ProcessPlan:     plan,
		PlannerAttempts: attempts,
	})
	if plan.NeedsClarification {
		return r.clarify(ctx, result, messages, meta, convState, profile, plan, nil)
	}

	response, grounding, err := r.executor.Execute(ctx, messages, plan, meta, convState, profile, userID)
	if err != nil {
		return "", fmt.Errorf("execution node: %w", err)
	}
	result.Deltas = append(result.Deltas, models.StateDelta{
		Node:            models.NodeExecution,
		Response:        response.Answer,
		ExecutionResult: response,
		Grounding:       grounding,
	})
	if response.NeedsClarification {
		return r.clarify(ctx, result, messages, meta, convState, profile, plan, grounding)
	}
	return response.Answer, nil
}

func (r *TurnRouter) clarify(ctx context.Context, result *models.TurnResult, messages []models.Message, meta *models.IntentMetadata, convState *models.ConversationState, profile *models.UserProfile, plan *models.ProcessPlan, grounding *models.GroundingMetadata) (string, error) {
	question, err := r.clarifier.Question(ctx, messages, meta, convState, profile, plan, grounding)
	if err != nil {
		return "", fmt.Errorf("clarification node: %w", err)
	}
	result.NeedsClarification = true
	result.Deltas = append(result.Deltas, models.StateDelta{
		Node:                  models.NodeClarification,
		Response:              question,
		NeedsClarification:    true,
		ClarificationQuestion: question,
	})
	return question, nil
}

// loadProfile fetches the user profile, tolerating its absence. Everything
// downstream treats a nil profile as "no personal context".
func (r *TurnRouter) loadProfile(ctx context.Context, userID int64) *models.UserProfile {
	profile, err := r.profiles.GetUserProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("TurnRouter.HandleTurn: profile lookup failed", "userID", userID, "error", err)
		}
		return nil
	}
	return profile
}

func (r *TurnRouter) failTurn(result *models.TurnResult, err error) (*models.TurnResult, error) {
	slog.Error("TurnRouter.HandleTurn: turn failed", "turnID", result.TurnID, "threadID", result.ThreadID, "error", err)
	result.Response = models.ErrorResponse
	result.NeedsClarification = false
	return result, err
}
