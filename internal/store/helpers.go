package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gutzcha/fitbit-bot/internal/models"
)

// DefaultKnowledgeLimit bounds knowledge searches when no limit is given.
const DefaultKnowledgeLimit = 5

// ensureSelectOnly rejects anything that is not a single SELECT statement.
// The metrics tables are read-only from this process.
func ensureSelectOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}
	if strings.ContainsRune(trimmed, ';') {
		return fmt.Errorf("multiple statements are not allowed")
	}
	first := strings.ToUpper(strings.Fields(trimmed)[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("only SELECT statements are allowed, got %s", first)
	}
	return nil
}

// scanRowsToMaps reads all rows into column-keyed maps. Byte slices are
// converted to strings so the result serializes cleanly.
func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalThreadState encodes the JSON columns of a thread state row.
func marshalThreadState(state *models.ThreadState) (stateJSON, messagesJSON string, err error) {
	if state.ThreadID == "" {
		return "", "", models.ErrEmptyThreadID
	}
	if state.ConversationState != nil {
		sj, err := json.Marshal(state.ConversationState)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode conversation state: %w", err)
		}
		stateJSON = string(sj)
	}
	if len(state.Messages) > 0 {
		mj, err := json.Marshal(state.Messages)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode messages: %w", err)
		}
		messagesJSON = string(mj)
	}
	return stateJSON, messagesJSON, nil
}

// scanThreadState decodes a thread_state row from a single sql.Row.
func scanThreadState(row *sql.Row) (*models.ThreadState, error) {
	var ts models.ThreadState
	var stateJSON, messagesJSON sql.NullString
	err := row.Scan(&ts.ThreadID, &ts.UserID, &stateJSON, &messagesJSON, &ts.CreatedAt, &ts.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread state failed: %w", err)
	}
	if stateJSON.Valid && stateJSON.String != "" && stateJSON.String != "null" {
		ts.ConversationState = &models.ConversationState{}
		if err := json.Unmarshal([]byte(stateJSON.String), ts.ConversationState); err != nil {
			return nil, fmt.Errorf("failed to decode conversation state: %w", err)
		}
	}
	if messagesJSON.Valid && messagesJSON.String != "" && messagesJSON.String != "null" {
		if err := json.Unmarshal([]byte(messagesJSON.String), &ts.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages: %w", err)
		}
	}
	return &ts, nil
}

// scanKnowledgeRows reads knowledge base search results.
func scanKnowledgeRows(rows *sql.Rows) ([]KnowledgeEntry, error) {
	var out []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		if err := rows.Scan(&e.Content, &e.Topic, &e.Source); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate knowledge rows: %w", err)
	}
	return out, nil
}
