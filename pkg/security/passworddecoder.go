package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"runtime"

	"github.com/cuemby/vaultline/pkg/session"
)

// SecureBuffer holds decoded credential plaintext outside of a normal Go
// string, so that a stray log line, panic dump, or heap snapshot never
// retains it. Zero MUST be called as soon as the caller is done with the
// plaintext; the finalizer is a safety net, not the primary release path.
type SecureBuffer struct {
	b []byte
}

// NewSecureBuffer takes ownership of b (the caller must not retain its
// own reference) and arranges for it to be zeroed if the caller forgets.
func NewSecureBuffer(b []byte) *SecureBuffer {
	sb := &SecureBuffer{b: b}
	runtime.SetFinalizer(sb, func(s *SecureBuffer) { s.Zero() })
	return sb
}

// Zero overwrites the held plaintext with zero bytes. Safe to call more
// than once.
func (sb *SecureBuffer) Zero() {
	for i := range sb.b {
		sb.b[i] = 0
	}
}

// Bytes returns the current plaintext. The returned slice aliases the
// buffer's storage; it becomes invalid after Zero.
func (sb *SecureBuffer) Bytes() []byte {
	return sb.b
}

// DecodePassword implements spec §4.4: hex-decode the wire payload,
// undo the encryptType-specific transport encryption, then XOR against
// the session nonce to recover the plaintext password, stopping at the
// first zero byte (the original C side terminates the plaintext with a
// NUL rather than carrying an explicit length field).
func DecodePassword(sess *session.Session, encryptType session.EncryptType, hexPayload string) (*SecureBuffer, error) {
	encrypted, err := hex.DecodeString(hexPayload)
	if err != nil {
		return nil, fmt.Errorf("security: decoding hex password payload: %w", err)
	}

	var encoded []byte
	switch encryptType {
	case session.EncryptRSA:
		priv := sess.PrivateKey()
		if priv == nil {
			return nil, fmt.Errorf("security: session has no private key for RSA decrypt")
		}
		encoded, err = rsa.DecryptPKCS1v15(nil, priv, encrypted)
		if err != nil {
			return nil, fmt.Errorf("security: RSA-decrypting password: %w", err)
		}
	case session.EncryptNone:
		encoded = encrypted
	default:
		return nil, fmt.Errorf("security: unsupported encryptType %v", encryptType)
	}

	plaintext := make([]byte, 0, len(encoded))
	for i, c := range encoded {
		x := c ^ sess.Nonce[i%len(sess.Nonce)]
		if x == 0 {
			break
		}
		plaintext = append(plaintext, x)
	}

	return NewSecureBuffer(plaintext), nil
}

// VerifyPassword derives a SHA-256 hash over the decoded plaintext and
// compares it against storedHash in constant time, per spec §4.4
// "Verification".
func VerifyPassword(decoded *SecureBuffer, storedHash []byte) bool {
	sum := sha256.Sum256(decoded.Bytes())
	return subtle.ConstantTimeCompare(sum[:], storedHash) == 1
}

// EncodeCredential is the connector-side inverse of DecodePassword: it
// XORs plaintext against the peer's session nonce, NUL-terminates it,
// optionally RSA-encrypts the result under the peer's session public
// key, then hex-encodes it for the wire (spec §4.6 "Authorize":
// "encryptedUUID is this host's persistent UUID encrypted under the
// peer's session public key... or emitted in clear when only NONE is
// advertised").
func EncodeCredential(sess *session.Session, encryptType session.EncryptType, plaintext string) (string, error) {
	pt := []byte(plaintext)
	encoded := make([]byte, len(pt)+1)
	for i, c := range pt {
		encoded[i] = c ^ sess.Nonce[i%len(sess.Nonce)]
	}
	encoded[len(pt)] = 0 ^ sess.Nonce[len(pt)%len(sess.Nonce)]

	var wire []byte
	switch encryptType {
	case session.EncryptRSA:
		if sess.PublicKey == nil {
			return "", fmt.Errorf("security: session has no public key for RSA encrypt")
		}
		ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, sess.PublicKey, encoded)
		if err != nil {
			return "", fmt.Errorf("security: RSA-encrypting credential: %w", err)
		}
		wire = ciphertext
	case session.EncryptNone:
		wire = encoded
	default:
		return "", fmt.Errorf("security: unsupported encryptType %v", encryptType)
	}
	return hex.EncodeToString(wire), nil
}
