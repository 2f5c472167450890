// Package conversation stores chat history and derives per-turn analysis.
//
// A turn is one question/answer exchange inside a (user, session) pair.
// Turns carry a gap-free message_sequence; concurrent writers are serialized
// with a transaction-scoped advisory lock so the max+1 assignment cannot race.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one stored question/answer exchange.
type Turn struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	SessionID       int64
	Question        string
	Answer          string
	MessageSequence int
	TotalTokens     int
	ExecutionTime   float64
	Sentiment       string
	Summary         string
	Topics          []string
	Metadata        map[string]any
	CreatedAt       time.Time
}

// Message is one chat message in model-facing role/content form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the recent history of a session flattened for prompting.
type Context struct {
	Messages   []Message
	HasHistory bool
	Metadata   map[string]any
}

// SaveTurn are the inputs for persisting one new turn.
type SaveTurn struct {
	TelegramID    int64
	SessionID     int64
	Question      string
	Answer        string
	TotalTokens   int
	ExecutionTime float64
	Metadata      map[string]any
}

// Analysis is the derived insight for one turn.
type Analysis struct {
	Sentiment string   `json:"sentiment"`
	Summary   string   `json:"summary"`
	Topics    []string `json:"topics"`
	Entities  []string `json:"entities"`
	Intent    string   `json:"intent"`
}
