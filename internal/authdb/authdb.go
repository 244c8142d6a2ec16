// Package authdb persists credential entries to disk with bcrypt-hashed
// passwords at rest, for the optional --auth-db CLI flag.
package authdb

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/netsurf-tools/monkeyctl/internal/browser"
)

// record is the on-disk shape; PasswordHash is a bcrypt hash, never plaintext.
type record struct {
	URL          string `json:"url,omitempty"`
	Realm        string `json:"realm,omitempty"`
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// Store is a flat JSON file of credential entries. browser.Session's
// auth_db matching needs a plaintext password to send over the wire, so
// ToAuthRecords only emits an entry once the caller supplies a matching
// cleartext password for it (see ToAuthRecords).
type Store struct {
	path    string
	records []record
}

// Open reads path if it exists, or starts an empty store if it doesn't
// (a missing auth DB is not an error: it just means no saved credentials).
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authdb: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("authdb: parse %s: %w", path, err)
	}
	return s, nil
}

// Add hashes password and appends a new entry, then persists the store.
func (s *Store) Add(url, realm, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("authdb: hash password: %w", err)
	}
	s.records = append(s.records, record{
		URL:          url,
		Realm:        realm,
		Username:     username,
		PasswordHash: string(hash),
	})
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("authdb: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("authdb: write %s: %w", s.path, err)
	}
	return nil
}

// Verify reports whether password matches the stored hash for the given
// username (any realm/url), without ever comparing plaintext.
func (s *Store) Verify(username, password string) bool {
	for _, r := range s.records {
		if r.Username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) == nil {
			return true
		}
	}
	return false
}

// ToAuthRecords builds browser.AuthRecord entries for every stored
// username whose plaintext password is supplied in cleartext (e.g. read
// once from an environment variable or interactive prompt at launch,
// never persisted). Usernames with no supplied cleartext are skipped,
// since the session controller needs a plaintext password to send over
// the wire protocol — the bcrypt hash only gates local verification.
func (s *Store) ToAuthRecords(cleartext map[string]string) []browser.AuthRecord {
	var out []browser.AuthRecord
	for _, r := range s.records {
		pw, ok := cleartext[r.Username]
		if !ok || bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(pw)) != nil {
			continue
		}
		out = append(out, browser.AuthRecord{
			URL:      r.URL,
			Realm:    r.Realm,
			Username: r.Username,
			Password: pw,
		})
	}
	return out
}
