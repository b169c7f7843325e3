package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry authors that are not agents. The seed prompt speaks as the
// user; tool results speak as the tool author.
const (
	UserAuthor = "user"
	ToolAuthor = "tool"
)

// Entry is one immutable record in the conversation history.
type Entry struct {
	ID        string
	Author    string
	Role      string
	Content   string
	Round     int
	CreatedAt time.Time
}

// State is the append-only conversation history shared by all agents in
// a run. Entries are never modified or removed once appended.
type State struct {
	mu      sync.Mutex
	entries []Entry
	round   int
}

// NewState creates an empty conversation history.
func NewState() *State {
	return &State{}
}

// Append records a new entry and returns it with its assigned id.
func (s *State) Append(author, role, content string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{
		ID:        uuid.New().String(),
		Author:    author,
		Role:      role,
		Content:   content,
		Round:     s.round,
		CreatedAt: time.Now().UTC(),
	}
	s.entries = append(s.entries, e)
	return e
}

// History returns a copy of all entries in append order.
func (s *State) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// LastAgentAuthor returns the author of the most recent entry spoken by
// an agent, skipping the seed prompt and tool results. Empty when no
// agent has spoken yet.
func (s *State) LastAgentAuthor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		switch s.entries[i].Author {
		case UserAuthor, ToolAuthor:
			continue
		default:
			return s.entries[i].Author
		}
	}
	return ""
}

// Round returns the current round number, starting at 0 before the
// first turn.
func (s *State) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// NextRound advances the round counter and returns the new round.
func (s *State) NextRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round++
	return s.round
}

// Len returns the number of entries.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Transcript renders the history as readable text, one entry per block.
func (s *State) Transcript() string {
	var out string
	for _, e := range s.History() {
		out += fmt.Sprintf("[%d] %s:\n%s\n\n", e.Round, e.Author, e.Content)
	}
	return out
}
