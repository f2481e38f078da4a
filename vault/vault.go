package vault

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/apiaryhq/swarm-vault-go/crypto"
	"github.com/apiaryhq/swarm-vault-go/model"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	ErrVaultExists      = errors.New("vault already exists")
	ErrVaultNotFound    = errors.New("vault not found")
	ErrCorruptVault     = errors.New("vault file is corrupt")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrWalletDecryption = errors.New("wallet decryption failed")
	ErrWeakPassword     = errors.New("password is too weak")
)

const (
	MinWalletCount           = 2
	MaxWalletCount           = 100
	DefaultMinPasswordLength = 8
)

// Vault owns the durable swarm wallet set. Secrets stay encrypted at rest;
// DecryptWallet exposes one key for the scope of one operation.
type Vault struct {
	path string
	log  *zap.Logger

	mu   sync.Mutex
	file *vaultFile
}

func Create(path string, cfg model.SwarmConfig, password string, log *zap.Logger) (*Vault, error) {
	minLength := cfg.MinPasswordLength
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if len(password) < minLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, minLength)
	}

	if cfg.WalletCount < MinWalletCount || cfg.WalletCount > MaxWalletCount {
		return nil, fmt.Errorf("wallet count must be between %d and %d, got %d",
			MinWalletCount, MaxWalletCount, cfg.WalletCount)
	}
	if cfg.RotationMode != "" && !cfg.RotationMode.IsValid() {
		return nil, fmt.Errorf("unknown rotation mode: %s", cfg.RotationMode)
	}

	if _, err := os.Stat(path); err == nil {
		return nil, ErrVaultExists
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot stat vault path: %w", err)
	}

	params := cfg.KDF
	if params.Algorithm == "" {
		params.Algorithm = crypto.AlgorithmPBKDF2SHA256
	}
	if params.Iterations <= 0 {
		params.Iterations = crypto.DefaultIterations
	}

	now := time.Now().UTC()
	wallets := make([]model.SwarmWallet, 0, cfg.WalletCount)
	for i := 0; i < cfg.WalletCount; i++ {
		wallet, err := newEncryptedWallet(i, password, params, now)
		if err != nil {
			return nil, fmt.Errorf("cannot create wallet %d: %w", i, err)
		}
		wallets = append(wallets, wallet)
	}

	vf := &vaultFile{
		Version:       fileVersion,
		CreatedAt:     now,
		RotationIndex: -1,
		Wallets:       wallets,
	}
	if err := writeVaultFile(path, vf); err != nil {
		return nil, err
	}

	log.Info("created swarm vault",
		zap.Int("wallet_count", len(wallets)),
		zap.String("path", path))

	return &Vault{path: path, log: log, file: vf}, nil
}

func newEncryptedWallet(index int, password string, params model.KDFParams, now time.Time) (model.SwarmWallet, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return model.SwarmWallet{}, fmt.Errorf("cannot generate keypair: %w", err)
	}
	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(key))

	salt, err := crypto.NewSalt()
	if err != nil {
		return model.SwarmWallet{}, err
	}
	derived, err := crypto.DeriveKey(password, salt, params)
	if err != nil {
		return model.SwarmWallet{}, err
	}
	blob, err := crypto.Encrypt(derived, []byte(keyHex))
	if err != nil {
		return model.SwarmWallet{}, err
	}

	return model.SwarmWallet{
		Index:      index,
		Address:    address,
		Ciphertext: base64.StdEncoding.EncodeToString(blob),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		KDF:        params,
		CreatedAt:  now,
	}, nil
}

func Load(path string, log *zap.Logger) (*Vault, error) {
	vf, err := readVaultFile(path)
	if err != nil {
		return nil, err
	}

	log.Info("loaded swarm vault",
		zap.Int("wallet_count", len(vf.Wallets)),
		zap.String("path", path))

	return &Vault{path: path, log: log, file: vf}, nil
}

func (v *Vault) Path() string {
	return v.path
}

func (v *Vault) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.file.Wallets)
}

// List returns wallet metadata only; ciphertexts and salts are stripped.
func (v *Vault) List() []model.SwarmWallet {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]model.SwarmWallet, len(v.file.Wallets))
	for i, w := range v.file.Wallets {
		w.Ciphertext = ""
		w.Salt = ""
		if w.LastUsedAt != nil {
			lastUsed := *w.LastUsedAt
			w.LastUsedAt = &lastUsed
		}
		out[i] = w
	}
	return out
}

func (v *Vault) Wallet(index int) (model.SwarmWallet, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if index < 0 || index >= len(v.file.Wallets) {
		return model.SwarmWallet{}, fmt.Errorf("%w: index %d", ErrWalletNotFound, index)
	}
	w := v.file.Wallets[index]
	w.Ciphertext = ""
	w.Salt = ""
	return w, nil
}

// DecryptWallet decrypts exactly one wallet's private key and verifies that
// the key derives the stored address. Wrong password, corrupt record, and
// address mismatch are indistinguishable to the caller.
func (v *Vault) DecryptWallet(index int, password string) (string, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if index < 0 || index >= len(v.file.Wallets) {
		return "", "", fmt.Errorf("%w: index %d", ErrWalletNotFound, index)
	}
	w := v.file.Wallets[index]

	salt, err := base64.StdEncoding.DecodeString(w.Salt)
	if err != nil {
		return "", "", ErrWalletDecryption
	}
	blob, err := base64.StdEncoding.DecodeString(w.Ciphertext)
	if err != nil {
		return "", "", ErrWalletDecryption
	}

	derived, err := crypto.DeriveKey(password, salt, w.KDF)
	if err != nil {
		return "", "", ErrWalletDecryption
	}
	keyHex, err := crypto.Decrypt(derived, blob)
	if err != nil {
		return "", "", ErrWalletDecryption
	}

	key, err := ethcrypto.HexToECDSA(string(keyHex))
	if err != nil {
		return "", "", ErrWalletDecryption
	}
	if !strings.EqualFold(ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), w.Address) {
		return "", "", ErrWalletDecryption
	}

	return w.Address, string(keyHex), nil
}

// VerifyPassword proves the password can open the vault by decrypting the
// first wallet. Used as a whole-run precondition before reclaim loops.
func (v *Vault) VerifyPassword(password string) error {
	_, _, err := v.DecryptWallet(0, password)
	return err
}

func (v *Vault) RecordUsage(index int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if index < 0 || index >= len(v.file.Wallets) {
		return fmt.Errorf("%w: index %d", ErrWalletNotFound, index)
	}

	wallet := &v.file.Wallets[index]
	prevCount := wallet.TradeCount
	prevUsed := wallet.LastUsedAt

	now := time.Now().UTC()
	wallet.TradeCount++
	wallet.LastUsedAt = &now

	if err := writeVaultFile(v.path, v.file); err != nil {
		wallet.TradeCount = prevCount
		wallet.LastUsedAt = prevUsed
		return err
	}
	return nil
}

func (v *Vault) RotationIndex() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.file.RotationIndex
}

func (v *Vault) SetRotationIndex(index int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if index < 0 || index >= len(v.file.Wallets) {
		return fmt.Errorf("%w: index %d", ErrWalletNotFound, index)
	}

	prev := v.file.RotationIndex
	v.file.RotationIndex = index
	if err := writeVaultFile(v.path, v.file); err != nil {
		v.file.RotationIndex = prev
		return err
	}
	return nil
}

// Destroy archives the vault file and clears the in-memory set. Callers must
// hold a passing dissolution check first; the engines enforce that ordering.
func (v *Vault) Destroy() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.file.Wallets) == 0 {
		return "", ErrVaultNotFound
	}

	archivePath := fmt.Sprintf("%s.dissolved.%d", v.path, time.Now().Unix())
	if err := os.Rename(v.path, archivePath); err != nil {
		return "", fmt.Errorf("cannot archive vault file: %w", err)
	}
	v.file.Wallets = nil

	v.log.Info("vault destroyed",
		zap.String("path", v.path),
		zap.String("archive", archivePath))

	return archivePath, nil
}
