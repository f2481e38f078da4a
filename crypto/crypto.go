package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/apiaryhq/swarm-vault-go/model"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize  = 32
	SaltSize = 16

	AlgorithmPBKDF2SHA256 = "pbkdf2-sha256"
	DefaultIterations     = 600000
)

// ErrDecryption is returned for every decryption failure: wrong password,
// truncated blob, or tampering. Callers cannot distinguish the causes.
var ErrDecryption = errors.New("decryption failed")

func DefaultKDFParams() model.KDFParams {
	return model.KDFParams{
		Algorithm:  AlgorithmPBKDF2SHA256,
		Iterations: DefaultIterations,
	}
}

func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("cannot generate salt: %w", err)
	}
	return salt, nil
}

func DeriveKey(password string, salt []byte, params model.KDFParams) ([]byte, error) {
	if params.Algorithm != AlgorithmPBKDF2SHA256 {
		return nil, fmt.Errorf("unsupported kdf algorithm: %s", params.Algorithm)
	}
	if params.Iterations <= 0 {
		return nil, fmt.Errorf("kdf iterations must be positive, got %d", params.Iterations)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return pbkdf2.Key([]byte(password), salt, params.Iterations, KeySize, sha256.New), nil
}

// Encrypt seals plaintext with AES-256-GCM. The random nonce is prepended to
// the returned ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cannot generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Any failure yields ErrDecryption
// and no plaintext.
func Decrypt(key, blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryption
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryption
	}

	if len(blob) < gcm.NonceSize() {
		return nil, ErrDecryption
	}

	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
