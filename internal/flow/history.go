// Package flow implements the dialogue engine: per-turn routing, intent
// classification, planning, execution, and the optional suggestion stage.
package flow

import "github.com/gutzcha/fitbit-bot/internal/models"

// TrimHistory bounds a message list to at most max entries. A leading system
// message is always preserved, and the kept window starts on a user message
// so a question/answer pair is never split.
func TrimHistory(messages []models.Message, max int) []models.Message {
	if max <= 0 || len(messages) == 0 {
		return nil
	}
	if len(messages) <= max {
		return append([]models.Message(nil), messages...)
	}

	var system *models.Message
	rest := messages
	if messages[0].Role == models.RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}

	budget := max
	if system != nil {
		budget--
	}
	if budget <= 0 {
		if system != nil {
			return []models.Message{*system}
		}
		return nil
	}

	start := len(rest) - budget
	if start < 0 {
		start = 0
	}
	// Advance to a user message so the window never opens mid-pair.
	for start < len(rest) && rest[start].Role != models.RoleUser {
		start++
	}

	out := make([]models.Message, 0, max)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest[start:]...)
	return out
}

// lastUserText returns the content of the most recent user message.
func lastUserText(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
