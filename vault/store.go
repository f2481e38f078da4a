package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apiaryhq/swarm-vault-go/model"
)

const fileVersion = 1

type vaultFile struct {
	Version       int                 `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	RotationIndex int                 `json:"previous_index"`
	Wallets       []model.SwarmWallet `json:"wallets"`
}

func readVaultFile(path string) (*vaultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("cannot read vault file: %w", err)
	}

	vf := &vaultFile{}
	if err := json.Unmarshal(data, vf); err != nil {
		return nil, ErrCorruptVault
	}

	if err := checkWalletSet(vf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptVault, err)
	}
	return vf, nil
}

func checkWalletSet(vf *vaultFile) error {
	if vf.Version != fileVersion {
		return fmt.Errorf("unsupported vault version %d", vf.Version)
	}
	for i, w := range vf.Wallets {
		if w.Index != i {
			return fmt.Errorf("wallet indices are not contiguous at position %d", i)
		}
		if w.Address == "" || w.Ciphertext == "" || w.Salt == "" {
			return fmt.Errorf("wallet %d is missing required fields", i)
		}
	}
	return nil
}

// writeVaultFile persists the whole set atomically: the content lands in a
// temp file in the same directory and replaces the vault via rename, so a
// crash mid-write never leaves a half-written vault.
func writeVaultFile(path string, vf *vaultFile) error {
	vf.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(vf, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode vault: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vault-*")
	if err != nil {
		return fmt.Errorf("cannot create temp vault file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cannot write vault: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cannot sync vault: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cannot close temp vault file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cannot restrict vault permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cannot replace vault file: %w", err)
	}
	return nil
}
