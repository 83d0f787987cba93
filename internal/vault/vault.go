// Package vault шифрует приватные ключи кошельков для хранения в БД.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Ошибки vault.
var (
	ErrInvalidKey     = errors.New("vault key is empty")
	ErrSealedTooShort = errors.New("sealed data too short")
	ErrOpenFailed     = errors.New("cannot open sealed data")
)

// Vault запечатывает данные ключом secretbox.
type Vault struct {
	key [32]byte
}

// New создаёт Vault из ключа в hex или base64.
// Строка другой длины используется как парольная фраза (sha256).
func New(key string) (*Vault, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	v := &Vault{}
	if b, err := hex.DecodeString(key); err == nil && len(b) == 32 {
		copy(v.key[:], b)
		return v, nil
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == 32 {
		copy(v.key[:], b)
		return v, nil
	}

	v.key = sha256.Sum256([]byte(key))
	return v, nil
}

// Seal шифрует plaintext. Результат: nonce || box.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &v.key), nil
}

// Open расшифровывает данные, созданные Seal.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealedTooShort
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}

// SealKey запечатывает приватный ключ кошелька.
func (v *Vault) SealKey(key solana.PrivateKey) ([]byte, error) {
	return v.Seal(key)
}

// OpenKey восстанавливает приватный ключ кошелька.
func (v *Vault) OpenKey(sealed []byte) (solana.PrivateKey, error) {
	b, err := v.Open(sealed)
	if err != nil {
		return nil, err
	}
	if len(b) != 64 {
		return nil, fmt.Errorf("%w: key length %d", ErrOpenFailed, len(b))
	}
	return solana.PrivateKey(b), nil
}
