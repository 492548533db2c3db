// Package state keeps the per-user conversation flow (calendar consent,
// settings dialog, exam-prep wizard) between otherwise stateless turns.
package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/studibot/internal/model"
	"github.com/pavelanni/studibot/internal/ttl"
)

// DefaultTTL is how long a flow survives without a write.
const DefaultTTL = 120 * time.Second

// Store holds at most one ConversationState per user. Implementations
// must treat an expired record exactly like a missing one and remove it
// on the read that detects the expiry.
type Store interface {
	Get(ctx context.Context, userID string) (*model.ConversationState, bool)
	Set(ctx context.Context, s *model.ConversationState)
	Clear(ctx context.Context, userID string)
}

// Memory is an in-process Store. Records are copied on the way in and
// out so callers can mutate what they read without racing other turns.
type Memory struct {
	m   *ttl.Map[string, *model.ConversationState]
	now func() time.Time
}

// NewMemory creates an in-process store. A nil clock uses time.Now.
func NewMemory(ttlDur time.Duration, now func() time.Time) *Memory {
	if ttlDur <= 0 {
		ttlDur = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{m: ttl.New[string, *model.ConversationState](ttlDur, now), now: now}
}

// Get returns a copy of the user's state, or false if none is live.
func (s *Memory) Get(_ context.Context, userID string) (*model.ConversationState, bool) {
	st, ok := s.m.Get(userID)
	if !ok {
		slog.Debug("conversation state miss")
		return nil, false
	}
	slog.Debug("conversation state hit", "mode", st.Mode)
	return st.Clone(), true
}

// Set replaces the user's state and refreshes its timestamp.
func (s *Memory) Set(_ context.Context, st *model.ConversationState) {
	if st == nil || st.UserID == "" {
		return
	}
	c := st.Clone()
	if c.Mode == "" {
		c.Mode = model.ModeNone
	}
	c.UpdatedAt = s.now()
	s.m.Set(c.UserID, c)
	slog.Debug("conversation state set", "mode", c.Mode)
}

// Clear drops the user's state. Clearing twice is harmless.
func (s *Memory) Clear(_ context.Context, userID string) {
	s.m.Delete(userID)
	slog.Debug("conversation state cleared")
}

// Sweep drops all expired records.
func (s *Memory) Sweep() int {
	return s.m.Sweep()
}

// RunJanitor sweeps expired records every interval until ctx is done.
func (s *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	s.m.RunJanitor(ctx, interval, "conversation state")
}
