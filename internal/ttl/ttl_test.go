package ttl

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestGetExpiresLazily(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)}
	m := New[string, int](2*time.Minute, clock.Now)

	m.Set("alice", 1)
	if v, ok := m.Get("alice"); !ok || v != 1 {
		t.Fatalf("Get() = %d, %v, want 1, true", v, ok)
	}

	clock.Advance(2 * time.Minute)
	if _, ok := m.Get("alice"); !ok {
		t.Fatal("entry exactly at TTL should still be present")
	}

	clock.Advance(time.Second)
	if _, ok := m.Get("alice"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not removed, len = %d", m.Len())
	}

	// A second read of the same key stays a miss.
	if _, ok := m.Get("alice"); ok {
		t.Error("expected repeated read to miss")
	}
}

func TestSetRefreshesTimestamp(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := New[string, string](time.Minute, clock.Now)

	m.Set("k", "a")
	clock.Advance(50 * time.Second)
	m.Set("k", "b")
	clock.Advance(50 * time.Second)

	v, ok := m.Get("k")
	if !ok || v != "b" {
		t.Fatalf("Get() = %q, %v, want b, true", v, ok)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	m := New[string, int](time.Minute, nil)
	m.Delete("missing")
	m.Set("k", 1)
	m.Delete("k")
	m.Delete("k")
	if _, ok := m.Get("k"); ok {
		t.Error("expected key to be gone")
	}
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := New[int, int](time.Minute, clock.Now)
	for i := range 5 {
		m.Set(i, i)
	}
	clock.Advance(2 * time.Minute)
	m.Set(99, 99)

	if n := m.Sweep(); n != 5 {
		t.Errorf("Sweep() = %d, want 5", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestRunJanitorSweepsUntilCancelled(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := New[string, int](time.Minute, clock.Now)
	m.Set("gone", 1)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunJanitor(ctx, time.Millisecond, "test")
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for m.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("janitor did not sweep the expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := New[string, int](time.Minute, clock.Now)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "user" + strconv.Itoa(i%5)
			m.Set(key, i)
			m.Get(key)
			if i%7 == 0 {
				clock.Advance(30 * time.Second)
				m.Delete(key)
			}
		}(i)
	}
	wg.Wait()
	m.Sweep()
}
