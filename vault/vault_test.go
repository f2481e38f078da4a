package vault

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/apiaryhq/swarm-vault-go/crypto"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "hunter22-swarm"

func testSwarmConfig(count int) model.SwarmConfig {
	return model.SwarmConfig{
		WalletCount: count,
		KDF:         model.KDFParams{Algorithm: crypto.AlgorithmPBKDF2SHA256, Iterations: 4096},
	}
}

func newTestVault(t *testing.T, count int) (*Vault, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarm_vault.json")
	v, err := Create(path, testSwarmConfig(count), testPassword, zap.NewNop())
	require.NoError(t, err)
	return v, path
}

func TestCreatePersistsEncryptedWallets(t *testing.T) {
	v, path := newTestVault(t, 3)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	wallets := v.List()
	require.Len(t, wallets, 3)

	seenAddresses := make(map[string]struct{})
	for i, w := range wallets {
		assert.Equal(t, i, w.Index)
		assert.True(t, strings.HasPrefix(w.Address, "0x"))
		assert.Len(t, w.Address, 42)
		assert.Empty(t, w.Ciphertext, "List must not expose ciphertexts")
		assert.Empty(t, w.Salt, "List must not expose salts")
		assert.Equal(t, uint64(0), w.TradeCount)
		seenAddresses[w.Address] = struct{}{}
	}
	assert.Len(t, seenAddresses, 3, "addresses should be distinct")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, w := range wallets {
		_, keyHex, err := v.DecryptWallet(w.Index, testPassword)
		require.NoError(t, err)
		assert.NotContains(t, string(data), keyHex, "private keys must not be stored in the clear")
	}
}

func TestCreateRejectsExistingVault(t *testing.T) {
	_, path := newTestVault(t, 2)

	_, err := Create(path, testSwarmConfig(2), testPassword, zap.NewNop())
	assert.ErrorIs(t, err, ErrVaultExists)
}

func TestCreateValidatesInputs(t *testing.T) {
	tests := []struct {
		name     string
		cfg      model.SwarmConfig
		password string
		wantErr  error
	}{
		{name: "weak password", cfg: testSwarmConfig(3), password: "short", wantErr: ErrWeakPassword},
		{name: "too few wallets", cfg: testSwarmConfig(1), password: testPassword},
		{name: "too many wallets", cfg: testSwarmConfig(101), password: testPassword},
		{name: "unknown rotation mode", cfg: func() model.SwarmConfig {
			c := testSwarmConfig(3)
			c.RotationMode = "spiral"
			return c
		}(), password: testPassword},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "swarm_vault.json")
			_, err := Create(path, tc.cfg, tc.password, zap.NewNop())
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "nothing should be persisted on validation failure")
		})
	}
}

func TestLoadAndDecryptRoundTrip(t *testing.T) {
	created, path := newTestVault(t, 3)
	createdWallets := created.List()

	loaded, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Count())

	for _, w := range createdWallets {
		address, keyHex, err := loaded.DecryptWallet(w.Index, testPassword)
		require.NoError(t, err)
		assert.Equal(t, w.Address, address)
		assert.Len(t, keyHex, 64)
	}
}

func TestDecryptWalletFailsClosed(t *testing.T) {
	v, _ := newTestVault(t, 2)

	t.Run("wrong password", func(t *testing.T) {
		address, keyHex, err := v.DecryptWallet(0, "not-the-password")
		assert.ErrorIs(t, err, ErrWalletDecryption)
		assert.Empty(t, address)
		assert.Empty(t, keyHex)
	})

	t.Run("unknown index", func(t *testing.T) {
		_, _, err := v.DecryptWallet(9, testPassword)
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("negative index", func(t *testing.T) {
		_, _, err := v.DecryptWallet(-1, testPassword)
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})
}

func TestVerifyPassword(t *testing.T) {
	v, _ := newTestVault(t, 2)

	assert.NoError(t, v.VerifyPassword(testPassword))
	assert.ErrorIs(t, v.VerifyPassword("bad password"), ErrWalletDecryption)
}

func TestLoadMissingAndCorruptVaults(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"), zap.NewNop())
		assert.ErrorIs(t, err, ErrVaultNotFound)
	})

	t.Run("not json", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.json")
		require.NoError(t, os.WriteFile(path, []byte("not a vault"), 0600))
		_, err := Load(path, zap.NewNop())
		assert.ErrorIs(t, err, ErrCorruptVault)
	})

	t.Run("non-contiguous indices", func(t *testing.T) {
		path := filepath.Join(dir, "gaps.json")
		content := `{"version":1,"previous_index":-1,"wallets":[
			{"index":0,"address":"0xaa","encrypted_key":"xx","salt":"yy","kdf":{"algorithm":"pbkdf2-sha256","iterations":4096},"created_at":"2026-01-01T00:00:00Z","trade_count":0},
			{"index":2,"address":"0xbb","encrypted_key":"xx","salt":"yy","kdf":{"algorithm":"pbkdf2-sha256","iterations":4096},"created_at":"2026-01-01T00:00:00Z","trade_count":0}]}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		_, err := Load(path, zap.NewNop())
		assert.ErrorIs(t, err, ErrCorruptVault)
	})

	t.Run("unsupported version", func(t *testing.T) {
		path := filepath.Join(dir, "future.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"wallets":[]}`), 0600))
		_, err := Load(path, zap.NewNop())
		assert.ErrorIs(t, err, ErrCorruptVault)
	})
}

func TestRecordUsagePersists(t *testing.T) {
	v, path := newTestVault(t, 2)

	require.NoError(t, v.RecordUsage(1))
	require.NoError(t, v.RecordUsage(1))
	require.NoError(t, v.RecordUsage(0))

	assert.ErrorIs(t, v.RecordUsage(5), ErrWalletNotFound)

	reloaded, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	wallets := reloaded.List()
	assert.Equal(t, uint64(1), wallets[0].TradeCount)
	assert.Equal(t, uint64(2), wallets[1].TradeCount)
	assert.NotNil(t, wallets[1].LastUsedAt)
}

func TestRotationIndexPersists(t *testing.T) {
	v, path := newTestVault(t, 3)

	assert.Equal(t, -1, v.RotationIndex(), "a fresh vault has no previous wallet")

	require.NoError(t, v.SetRotationIndex(2))
	assert.ErrorIs(t, v.SetRotationIndex(3), ErrWalletNotFound)

	reloaded, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.RotationIndex())
}

func TestDestroyArchivesVaultFile(t *testing.T) {
	v, path := newTestVault(t, 2)

	archive, err := v.Destroy()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(archive, path+".dissolved."))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original vault file should be gone")
	_, err = os.Stat(archive)
	assert.NoError(t, err, "archive should remain for forensics")

	assert.Equal(t, 0, v.Count())
	_, err = v.Destroy()
	assert.ErrorIs(t, err, ErrVaultNotFound)
}
