package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testParams = Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testParams)
	require.NoError(t, err)
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("Secret1!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := h.Verify("Secret1!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Secret2!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	h := newTestHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("Secret1!"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := h.Verify("Secret1!", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("nope", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyMalformed(t *testing.T) {
	h := newTestHasher(t)

	for _, hash := range []string{"", "plaintext", "$argon2id$v=19$broken", "$argon2id$v=18$m=1,t=1,p=1$AAAA$AAAA"} {
		_, err := h.Verify("x", hash)
		assert.ErrorIs(t, err, ErrMalformedHash, hash)
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	_, err := NewHasher(Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	assert.Error(t, err)

	_, err = NewHasher(DefaultParams)
	assert.NoError(t, err)
}
