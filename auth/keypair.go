package auth

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

// LocalSigner signs with an in-memory ed25519 private key.
type LocalSigner struct {
	key ed25519.PrivateKey
}

// NewLocalSigner wraps an ed25519 private key.
func NewLocalSigner(key ed25519.PrivateKey) (*LocalSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(key))
	}
	return &LocalSigner{key: key}, nil
}

// Sign produces a detached ed25519 signature. It is pure and never fails for
// a well-formed key.
func (s *LocalSigner) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.key, message), nil
}

// PublicKey returns the signer's public key.
func (s *LocalSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Wallet returns the signer's base58 wallet address.
func (s *LocalSigner) Wallet() string {
	return base58.Encode(s.PublicKey())
}

// LoadKeypair reads a signing key from disk. Two formats are accepted: the
// Solana CLI keypair file (a JSON array of 64 bytes) and a bare base58 string
// encoding either a 64-byte private key or a 32-byte seed.
func LoadKeypair(path string) (*LocalSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}
	return ParseKeypair(strings.TrimSpace(string(data)))
}

// ParseKeypair decodes keypair material in either supported format.
func ParseKeypair(raw string) (*LocalSigner, error) {
	if strings.HasPrefix(raw, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("failed to parse keypair array: %w", err)
		}
		bytes := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("keypair array element %d out of byte range", i)
			}
			bytes[i] = byte(v)
		}
		return signerFromBytes(bytes)
	}

	bytes, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 keypair: %w", err)
	}
	return signerFromBytes(bytes)
}

func signerFromBytes(bytes []byte) (*LocalSigner, error) {
	switch len(bytes) {
	case ed25519.PrivateKeySize:
		return NewLocalSigner(ed25519.PrivateKey(bytes))
	case ed25519.SeedSize:
		return NewLocalSigner(ed25519.NewKeyFromSeed(bytes))
	default:
		return nil, fmt.Errorf("keypair must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(bytes))
	}
}
