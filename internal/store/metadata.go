package store

import (
	"database/sql"
	"errors"
)

const adminTokenKey = "admin_token_hash"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if isNoRows(err) {
		return "", nil
	}
	return value, err
}

// AdminTokenHash returns the bcrypt hash guarding the admin endpoints, or "".
func (s *Store) AdminTokenHash() (string, error) {
	return s.GetMetadata(adminTokenKey)
}

// SetAdminTokenHash stores the bcrypt hash guarding the admin endpoints.
func (s *Store) SetAdminTokenHash(hash string) error {
	return s.SetMetadata(adminTokenKey, hash)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
