package sshui

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

func newKey(t *testing.T) gossh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := gossh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func authorizedLine(key gossh.PublicKey, comment string) string {
	line := strings.TrimSpace(string(gossh.MarshalAuthorizedKey(key)))
	if comment != "" {
		line += " " + comment
	}
	return line
}

func TestParseAuthorizedKeys(t *testing.T) {
	alice := newKey(t)
	bob := newKey(t)

	data := strings.Join([]string{
		"# seat two",
		"",
		authorizedLine(alice, "alice@desk"),
		"   ",
		authorizedLine(bob, ""),
	}, "\n")

	keys, err := ParseAuthorizedKeys([]byte(data))
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, "alice@desk", keys[0].Comment)
	assert.Equal(t, gossh.FingerprintSHA256(alice), keys[0].Fingerprint)
	assert.Equal(t, gossh.FingerprintSHA256(bob), keys[1].Fingerprint)
}

func TestParseAuthorizedKeysRejectsGarbage(t *testing.T) {
	data := authorizedLine(newKey(t), "ok") + "\nssh-ed25519 not-base64!!\n"
	_, err := ParseAuthorizedKeys([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestKeySetAllowed(t *testing.T) {
	alice := newKey(t)
	stranger := newKey(t)

	keys, err := ParseAuthorizedKeys([]byte(authorizedLine(alice, "alice@desk")))
	require.NoError(t, err)
	set := NewKeySet(keys)

	tests := []struct {
		name    string
		key     gossh.PublicKey
		allowed bool
		comment string
	}{
		{name: "known key", key: alice, allowed: true, comment: "alice@desk"},
		{name: "unknown key", key: stranger},
		{name: "nil key", key: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comment, ok := set.Allowed(tt.key)
			assert.Equal(t, tt.allowed, ok)
			assert.Equal(t, tt.comment, comment)
		})
	}

	var empty *KeySet
	_, ok := empty.Allowed(alice)
	assert.False(t, ok)
	assert.Equal(t, 0, empty.Len())
}

func TestLoadAuthorizedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authorized_keys")
	require.NoError(t, os.WriteFile(path, []byte(authorizedLine(newKey(t), "")+"\n"), 0o600))

	keys, err := LoadAuthorizedKeys(path)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	_, err = LoadAuthorizedKeys(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
