package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/studibot/internal/model"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Memory, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)}
	return NewMemory(DefaultTTL, c.now), c
}

func TestExpiredStateIsAbsentAndRemoved(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, model.ConsentState("alice", "raw"))
	c.advance(DefaultTTL + time.Second)

	if _, ok := s.Get(ctx, "alice"); ok {
		t.Fatal("expected expired state to read as absent")
	}
	if s.m.Len() != 0 {
		t.Errorf("expected expired record to be deleted, len = %d", s.m.Len())
	}
	if _, ok := s.Get(ctx, "alice"); ok {
		t.Error("second read after expiry should also miss")
	}
}

func TestSetReplacesPayload(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, model.ConsentState("bob", "Abgabe Blatt 3"))
	s.Set(ctx, model.SettingsState("bob", model.SettingsAskTaskDays, 0))

	got, ok := s.Get(ctx, "bob")
	if !ok {
		t.Fatal("expected state")
	}
	if got.Mode != model.ModeConfiguringSettings {
		t.Errorf("mode = %q, want %q", got.Mode, model.ModeConfiguringSettings)
	}
	if got.RawTermine != "" {
		t.Errorf("raw termine leaked across modes: %q", got.RawTermine)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	w := model.NewWizardState()
	w.Topics = []string{"Analysis"}
	s.Set(ctx, model.WizardConversation("carol", w))

	got, _ := s.Get(ctx, "carol")
	got.Wizard.Topics[0] = "mutated"
	got.Wizard.Materials["x"] = "y"

	again, _ := s.Get(ctx, "carol")
	if again.Wizard.Topics[0] != "Analysis" {
		t.Errorf("stored topics mutated through returned copy: %v", again.Wizard.Topics)
	}
	if len(again.Wizard.Materials) != 0 {
		t.Errorf("stored materials mutated through returned copy: %v", again.Wizard.Materials)
	}
}

func TestUsersDoNotCollide(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, model.ConsentState("u1", "one"))
	s.Set(ctx, model.ConsentState("u2", "two"))
	s.Clear(ctx, "u1")
	s.Clear(ctx, "u1")

	if _, ok := s.Get(ctx, "u1"); ok {
		t.Error("u1 should be cleared")
	}
	got, ok := s.Get(ctx, "u2")
	if !ok || got.RawTermine != "two" {
		t.Errorf("u2 state = %+v, %v", got, ok)
	}
}

func TestSetIgnoresAnonymous(t *testing.T) {
	s, _ := newTestStore(t)
	s.Set(context.Background(), &model.ConversationState{Mode: model.ModeWizardActive})
	s.Set(context.Background(), nil)
	if s.m.Len() != 0 {
		t.Errorf("expected nothing stored, len = %d", s.m.Len())
	}
}
