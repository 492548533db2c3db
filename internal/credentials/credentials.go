// Package credentials keeps the portal login and API key in a local file
// encrypted with a key derived from the machine it was written on.
package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/pavelanni/studibot/internal/model"
)

// ErrNotFound is returned when no credentials have been saved.
var ErrNotFound = errors.New("no stored credentials")

const (
	fileName = "credentials.enc"
	hkdfInfo = "studibot credentials v1"
)

// Store reads and writes the encrypted credentials file in dir.
type Store struct {
	mu   sync.Mutex
	path string
	key  []byte
}

// New returns a Store in dir keyed by the local device identity.
func New(dir string) (*Store, error) {
	return NewWithIdentity(dir, DeviceIdentity())
}

// NewWithIdentity derives the file key from identity.
func NewWithIdentity(dir, identity string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(identity), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Store{path: filepath.Join(dir, fileName), key: key}, nil
}

// DefaultDir is $XDG_CONFIG_HOME/studibot or its platform equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "studibot"), nil
}

// DeviceIdentity combines host and user identifiers into a stable string.
func DeviceIdentity() string {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	parts := []string{host, os.Getenv("USER"), os.Getenv("USERNAME"), home}
	return strings.Join(parts, "|")
}

// Path returns the location of the encrypted file.
func (s *Store) Path() string { return s.path }

// Save encrypts c and replaces the stored file.
func (s *Store) Save(c model.Credentials) error {
	plain, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	slog.Info("credentials saved", "path", s.path)
	return nil
}

// Load decrypts the stored credentials.
func (s *Store) Load() (model.Credentials, error) {
	s.mu.Lock()
	sealed, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return model.Credentials{}, ErrNotFound
	}
	if err != nil {
		return model.Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return model.Credentials{}, err
	}
	if len(sealed) < aead.NonceSize() {
		return model.Credentials{}, errors.New("credentials file truncated")
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("decrypt credentials: %w", err)
	}
	var c model.Credentials
	if err := json.Unmarshal(plain, &c); err != nil {
		return model.Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return c, nil
}

// Delete removes the stored file. Deleting nothing is not an error.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// Mask hides all but the last four characters of secret.
func Mask(secret string) string {
	r := []rune(secret)
	if len(r) == 0 {
		return ""
	}
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

// Masked returns c with password and API key masked.
func Masked(c model.Credentials) model.Credentials {
	c.Password = Mask(c.Password)
	c.APIKey = Mask(c.APIKey)
	return c
}
