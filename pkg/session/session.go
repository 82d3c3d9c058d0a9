package session

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/cuemby/vaultline/pkg/wireline"
)

// EncryptType names the credential-encryption scheme negotiated for one
// session, per spec §4.2/§4.4.
type EncryptType int

const (
	EncryptNone EncryptType = iota
	EncryptRSA
)

func (e EncryptType) String() string {
	switch e {
	case EncryptRSA:
		return "RSA"
	default:
		return "NONE"
	}
}

// ParseEncryptType parses the canonical uppercase name used on the wire.
func ParseEncryptType(s string) (EncryptType, error) {
	switch strings.ToUpper(s) {
	case "NONE":
		return EncryptNone, nil
	case "RSA":
		return EncryptRSA, nil
	default:
		return 0, fmt.Errorf("session: unknown encryptType %q", s)
	}
}

// rsaKeyBits is the ephemeral session keypair size. Shorter-lived than a
// CA key, so 2048 bits is ample per spec §4.2.
const rsaKeyBits = 2048

// Session holds the per-connection cryptographic context established by
// §4.2: the shared nonce, the encrypt types advertised and the one
// ultimately selected by the peer during AUTHORIZE, and the responder's
// ephemeral keypair (nil when only NONE is advertised).
type Session struct {
	Nonce        [64]byte
	EncryptTypes []EncryptType
	Selected     EncryptType

	PublicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
}

// PrivateKey returns the session's ephemeral private key, or nil when the
// session was degraded to EncryptNone.
func (s *Session) PrivateKey() *rsa.PrivateKey {
	return s.privateKey
}

// Accept generates a new responder-side session: a fresh 64-byte nonce
// and an ephemeral RSA keypair. If key generation fails — the
// "asymmetric primitive is unavailable" branch in spec §4.2 — the
// session degrades to advertising EncryptNone only, with no key
// material at all.
func Accept() (*Session, error) {
	s := &Session{}
	if _, err := rand.Read(s.Nonce[:]); err != nil {
		return nil, fmt.Errorf("session: generating nonce: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		s.EncryptTypes = []EncryptType{EncryptNone}
		return s, nil
	}

	s.privateKey = key
	s.PublicKey = &key.PublicKey
	s.EncryptTypes = []EncryptType{EncryptRSA, EncryptNone}
	return s, nil
}

// Line renders the SESSION line advertised exactly once by the
// responder, per spec §6.
func (s *Session) Line() string {
	types := make([]string, len(s.EncryptTypes))
	for i, t := range s.EncryptTypes {
		types[i] = t.String()
	}

	args := []wireline.Arg{
		wireline.RawArg("id", hex.EncodeToString(s.Nonce[:])),
		wireline.CStringArg("encryptTypes", strings.Join(types, ",")),
	}
	if s.PublicKey != nil {
		args = append(args,
			wireline.RawArg("n", s.PublicKey.N.String()),
			wireline.Int64Arg("e", int64(s.PublicKey.E)),
		)
	}
	return "SESSION " + wireline.FormatResultPayload(args...)
}

// Parse reads a SESSION line produced by Line, as the connector side of
// a session (spec §4.6 "Connect").
func Parse(line string) (*Session, error) {
	const prefix = "SESSION "
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("session: expected SESSION line, got %q", line)
	}

	args, err := wireline.ParseArgs(strings.TrimPrefix(line, prefix))
	if err != nil {
		return nil, fmt.Errorf("session: parsing SESSION line: %w", err)
	}

	idHex, err := args.GetString("id")
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	nonce, err := hex.DecodeString(idHex)
	if err != nil || len(nonce) != 64 {
		return nil, fmt.Errorf("session: malformed nonce in SESSION line")
	}

	csv, err := args.GetString("encryptTypes")
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	var types []EncryptType
	for _, name := range strings.Split(csv, ",") {
		t, err := ParseEncryptType(name)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		types = append(types, t)
	}

	s := &Session{EncryptTypes: types}
	copy(s.Nonce[:], nonce)

	nStr, hasN := args.Get("n")
	_, hasE := args.Get("e")
	if hasN && hasE {
		modulus, ok := new(big.Int).SetString(nStr, 10)
		if !ok {
			return nil, fmt.Errorf("session: malformed modulus in SESSION line")
		}
		e, err := args.GetInt64("e")
		if err != nil {
			return nil, fmt.Errorf("session: malformed exponent: %w", err)
		}
		s.PublicKey = &rsa.PublicKey{N: modulus, E: int(e)}
	}

	return s, nil
}

// SelectEncryptType records which advertised scheme the peer chose
// during AUTHORIZE (spec §4.2 "selected by peer during authorize").
func (s *Session) SelectEncryptType(t EncryptType) error {
	for _, avail := range s.EncryptTypes {
		if avail == t {
			s.Selected = t
			return nil
		}
	}
	return fmt.Errorf("session: encryptType %s was not advertised", t)
}
