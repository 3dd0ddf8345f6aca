// Package crypto protects venue credentials at rest. Signing keys and API
// secrets are stored as PBKDF2+AES-256-GCM sealed JSON files so they never
// sit on disk in the clear.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the sealed-credential JSON schema version.
	currentVersion = 1
)

// sealedCredentialJSON is the on-disk format for a sealed credential.
type sealedCredentialJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// CredentialConfig carries the information LoadCredential needs to resolve a
// secret. Populate the fields from environment variables or the config file.
type CredentialConfig struct {
	// Raw is the credential itself, e.g. a PEM block injected through the
	// environment. If non-empty, LoadCredential returns it directly.
	Raw string

	// Path points at the credential stored in the clear on disk.
	Path string

	// SealedPath points at a JSON file produced by Seal.
	SealedPath string

	// Password decrypts the file at SealedPath.
	Password string
}

// Seal encrypts credential material with a password using PBKDF2-HMAC-SHA256
// key derivation and AES-256-GCM authenticated encryption. It returns the
// JSON blob suitable for writing to disk.
func Seal(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(plaintext) == 0 {
		return nil, errors.New("crypto: nothing to seal")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := sealedCredentialJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}

	return json.MarshalIndent(out, "", "  ")
}

// Open decrypts a JSON blob produced by Seal, returning the credential
// material.
func Open(sealed []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var stored sealedCredentialJSON
	if err := json.Unmarshal(sealed, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing sealed credential JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	return plaintext, nil
}

// LoadCredential resolves a credential from the provided configuration.
//
// Resolution order:
//  1. If Raw is set, return it directly.
//  2. If Path is set, return the file contents as-is.
//  3. If SealedPath is set, read the file and decrypt with Password.
//  4. Otherwise, fail with domain.ErrConfigMissing.
func LoadCredential(cfg CredentialConfig) ([]byte, error) {
	if cfg.Raw != "" {
		return []byte(cfg.Raw), nil
	}

	if cfg.Path != "" {
		data, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading credential file: %w", err)
		}
		return data, nil
	}

	if cfg.SealedPath != "" {
		data, err := os.ReadFile(cfg.SealedPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading sealed credential file: %w", err)
		}
		return Open(data, cfg.Password)
	}

	return nil, fmt.Errorf("crypto: no credential source configured: %w", domain.ErrConfigMissing)
}
