package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = model.KDFParams{Algorithm: AlgorithmPBKDF2SHA256, Iterations: 4096}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		plaintext string
	}{
		{name: "hex private key", password: "correct horse battery", plaintext: "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"},
		{name: "short secret", password: "p@ssw0rd!", plaintext: "x"},
		{name: "unicode password", password: "пароль-passphrase", plaintext: "deadbeef"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			salt, err := NewSalt()
			require.NoError(t, err)

			key, err := DeriveKey(tc.password, salt, testParams)
			require.NoError(t, err)

			blob, err := Encrypt(key, []byte(tc.plaintext))
			require.NoError(t, err)
			assert.NotContains(t, hex.EncodeToString(blob), hex.EncodeToString([]byte(tc.plaintext)))

			plaintext, err := Decrypt(key, blob)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, string(plaintext))
		})
	}
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	key, err := DeriveKey("right password", salt, testParams)
	require.NoError(t, err)

	blob, err := Encrypt(key, []byte("secret material"))
	require.NoError(t, err)

	wrongKey, err := DeriveKey("wrong password", salt, testParams)
	require.NoError(t, err)

	plaintext, err := Decrypt(wrongKey, blob)
	assert.ErrorIs(t, err, ErrDecryption)
	assert.Nil(t, plaintext)
}

func TestDecryptTamperedBlobFails(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	key, err := DeriveKey("password123", salt, testParams)
	require.NoError(t, err)

	blob, err := Encrypt(key, []byte("secret material"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "flipped ciphertext byte", mutate: func(b []byte) []byte {
			out := append([]byte(nil), b...)
			out[len(out)-1] ^= 0xff
			return out
		}},
		{name: "flipped nonce byte", mutate: func(b []byte) []byte {
			out := append([]byte(nil), b...)
			out[0] ^= 0xff
			return out
		}},
		{name: "truncated blob", mutate: func(b []byte) []byte {
			return b[:4]
		}},
		{name: "empty blob", mutate: func(b []byte) []byte {
			return nil
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plaintext, err := Decrypt(key, tc.mutate(blob))
			assert.ErrorIs(t, err, ErrDecryption)
			assert.Nil(t, plaintext)
		})
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	first, err := DeriveKey("stable password", salt, testParams)
	require.NoError(t, err)
	second, err := DeriveKey("stable password", salt, testParams)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	otherSalt, err := NewSalt()
	require.NoError(t, err)
	third, err := DeriveKey("stable password", otherSalt, testParams)
	require.NoError(t, err)
	assert.NotEqual(t, first, third, "different salts should derive different keys")
}

func TestDeriveKeyRejectsBadParams(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	tests := []struct {
		name   string
		salt   []byte
		params model.KDFParams
	}{
		{name: "unknown algorithm", salt: salt, params: model.KDFParams{Algorithm: "scrypt", Iterations: 4096}},
		{name: "zero iterations", salt: salt, params: model.KDFParams{Algorithm: AlgorithmPBKDF2SHA256, Iterations: 0}},
		{name: "short salt", salt: salt[:8], params: testParams},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, err := DeriveKey("password", tc.salt, tc.params)
			assert.Error(t, err)
			assert.Nil(t, key)
		})
	}
}

func TestSaltUniqueness(t *testing.T) {
	const count = 10000

	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		salt, err := NewSalt()
		require.NoError(t, err)
		require.Len(t, salt, SaltSize)

		hexSalt := hex.EncodeToString(salt)
		_, dup := seen[hexSalt]
		require.False(t, dup, "duplicate salt after %d generations", i)
		seen[hexSalt] = struct{}{}
	}
}

func TestDefaultKDFParams(t *testing.T) {
	params := DefaultKDFParams()
	assert.Equal(t, AlgorithmPBKDF2SHA256, params.Algorithm)
	assert.GreaterOrEqual(t, params.Iterations, 600000)
}
