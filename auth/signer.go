package auth

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// Namespace is the fixed tag prefixed to every signed message. It must match
// the backend verifier byte for byte.
const Namespace = "launchflow"

// signWindowSeconds quantizes timestamps into 5-minute buckets so client and
// server derive the same window without a clock-sync handshake.
const signWindowSeconds = 300

// Logical action names recognised by the backend verifier.
const (
	ActionSession = "session"
	ActionCreate  = "create"
	ActionTrade   = "trade"
	ActionChat    = "chat"
)

// sessionPayload is the fixed literal signed for session creation. Session
// login carries no user data, so the message is constant within a window.
const sessionPayload = `{"action":"create_session"}`

// Signer produces detached signatures over raw message bytes. Implementations
// may block for user interaction, so no timeout is imposed here.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// Credential is the wallet/signature pair attached to authenticated requests.
type Credential struct {
	Signature string
	Wallet    string
}

// BuildMessage computes the canonical authentication message for an action at
// the given UNIX-second timestamp:
//
//	"<Namespace>:<action>:<window>:<canonicalJSON(payload)>"
//
// where window is now quantized down to a 300 second boundary. The canonical
// payload encoding is encoding/json over the supplied value: struct fields in
// declaration order, map keys sorted. The backend verifier must serialize the
// same way. For ActionSession the payload argument is ignored and the fixed
// create_session literal is signed instead.
func BuildMessage(action string, payload any, now int64) (string, error) {
	window := now / signWindowSeconds * signWindowSeconds

	encoded := []byte(sessionPayload)
	if action != ActionSession {
		b, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode sign payload: %w", err)
		}
		encoded = b
	}

	return fmt.Sprintf("%s:%s:%d:%s", Namespace, action, window, encoded), nil
}

// Sign produces a detached signature over the UTF-8 bytes of message. Signing
// failures propagate to the caller; this is a write-path operation and must
// not be silently swallowed.
func Sign(message string, signer Signer) ([]byte, error) {
	sig, err := signer.Sign([]byte(message))
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, nil
}

// Encode converts a raw signature and public key into the base58 credential
// pair sent on the wire.
func Encode(signature []byte, publicKey ed25519.PublicKey) Credential {
	return Credential{
		Signature: base58.Encode(signature),
		Wallet:    base58.Encode(publicKey),
	}
}

// Verify checks a base58 signature against a message and wallet address. It
// fails closed: malformed base58, a key or signature of the wrong length, or
// a bad signature all yield false. Verification runs against adversarial
// input and therefore never panics or returns an error.
func Verify(message string, signatureB58 string, walletB58 string) bool {
	sig, err := base58.Decode(signatureB58)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	pub, err := base58.Decode(walletB58)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}
