package sshui

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	gossh "golang.org/x/crypto/ssh"
)

// AuthorizedKey is one entry of an authorized_keys file
type AuthorizedKey struct {
	Key         gossh.PublicKey
	Comment     string
	Fingerprint string
}

// ParseAuthorizedKeys reads every key from an authorized_keys payload.
// Blank lines and comments are skipped; a malformed line fails the whole
// file so a typo never silently locks someone out.
func ParseAuthorizedKeys(data []byte) ([]AuthorizedKey, error) {
	var keys []AuthorizedKey
	line := 0
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line++
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] == '#' {
			continue
		}
		key, comment, _, _, err := gossh.ParseAuthorizedKey(trimmed)
		if err != nil {
			return nil, fmt.Errorf("authorized keys line %d: %w", line, err)
		}
		keys = append(keys, AuthorizedKey{
			Key:         key,
			Comment:     comment,
			Fingerprint: gossh.FingerprintSHA256(key),
		})
	}
	return keys, nil
}

// LoadAuthorizedKeys parses the authorized_keys file at path
func LoadAuthorizedKeys(path string) ([]AuthorizedKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorized keys: %w", err)
	}
	return ParseAuthorizedKeys(data)
}

// KeySet answers whether a key is authorized
type KeySet struct {
	byFingerprint map[string]AuthorizedKey
}

// NewKeySet indexes keys by SHA256 fingerprint
func NewKeySet(keys []AuthorizedKey) *KeySet {
	s := &KeySet{byFingerprint: make(map[string]AuthorizedKey, len(keys))}
	for _, k := range keys {
		s.byFingerprint[k.Fingerprint] = k
	}
	return s
}

// Allowed reports whether key is in the set, returning its comment
func (s *KeySet) Allowed(key gossh.PublicKey) (string, bool) {
	if s == nil || key == nil {
		return "", false
	}
	k, ok := s.byFingerprint[gossh.FingerprintSHA256(key)]
	if !ok || !bytes.Equal(k.Key.Marshal(), key.Marshal()) {
		return "", false
	}
	return strings.TrimSpace(k.Comment), true
}

// Len returns the number of authorized keys
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byFingerprint)
}
