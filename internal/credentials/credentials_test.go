package credentials

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pavelanni/studibot/internal/model"
)

func newTestStore(t *testing.T, identity string) *Store {
	t.Helper()
	s, err := NewWithIdentity(t.TempDir(), identity)
	if err != nil {
		t.Fatalf("NewWithIdentity: %v", err)
	}
	return s
}

func TestSaveLoadDelete(t *testing.T) {
	s := newTestStore(t, "host|user|/home/user")
	want := model.Credentials{Username: "baw1234", Password: "geheim", APIKey: "sk-test-1234"}

	if _, err := s.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load before Save: err = %v, want ErrNotFound", err)
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("geheim")) || bytes.Contains(raw, []byte("baw1234")) {
		t.Error("file contains plaintext secrets")
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete: err = %v", err)
	}
}

func TestOtherDeviceCannotDecrypt(t *testing.T) {
	a := newTestStore(t, "laptop|anna|/home/anna")
	if err := a.Save(model.Credentials{Username: "anna", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	b, err := NewWithIdentity(t.TempDir(), "desktop|ben|/home/ben")
	if err != nil {
		t.Fatal(err)
	}
	b.path = a.path
	if _, err := b.Load(); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Load with foreign key: err = %v, want decrypt error", err)
	}
}

func TestTruncatedFile(t *testing.T) {
	s := newTestStore(t, "x")
	if err := os.WriteFile(s.Path(), []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil {
		t.Error("expected error for truncated file")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "***"},
		{"sk-test-1234", "********1234"},
		{"pässwört", "****wört"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	m := Masked(model.Credentials{Username: "anna", Password: "secret", APIKey: "sk-abcdef"})
	if m.Username != "anna" || m.Password != "**cret" || m.APIKey != "*****cdef" {
		t.Errorf("Masked() = %+v", m)
	}
}
