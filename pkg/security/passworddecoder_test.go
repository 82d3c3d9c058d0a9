package security

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/cuemby/vaultline/pkg/session"
)

func xorEncode(nonce [64]byte, plaintext string) []byte {
	pt := []byte(plaintext)
	out := make([]byte, len(pt)+1) // +1 for the NUL terminator
	for i, c := range pt {
		out[i] = c ^ nonce[i%len(nonce)]
	}
	out[len(pt)] = 0 ^ nonce[len(pt)%len(nonce)]
	return out
}

func TestDecodePasswordNoneEncryption(t *testing.T) {
	sess, err := session.Accept()
	if err != nil {
		t.Fatal(err)
	}

	encoded := xorEncode(sess.Nonce, "hunter2")
	payload := hex.EncodeToString(encoded)

	sb, err := DecodePassword(sess, session.EncryptNone, payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(sb.Bytes()) != "hunter2" {
		t.Errorf("got %q", sb.Bytes())
	}
	sb.Zero()
	for _, b := range sb.Bytes() {
		if b != 0 {
			t.Fatal("Zero did not clear buffer")
		}
	}
}

func TestVerifyPassword(t *testing.T) {
	sess, err := session.Accept()
	if err != nil {
		t.Fatal(err)
	}
	encoded := xorEncode(sess.Nonce, "correct-horse")
	payload := hex.EncodeToString(encoded)

	sb, err := DecodePassword(sess, session.EncryptNone, payload)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte("correct-horse"))
	if !VerifyPassword(sb, sum[:]) {
		t.Error("expected matching hash to verify")
	}

	wrongSum := sha256.Sum256([]byte("wrong"))
	sb2, _ := DecodePassword(sess, session.EncryptNone, payload)
	if VerifyPassword(sb2, wrongSum[:]) {
		t.Error("expected mismatched hash to fail verification")
	}
}

func TestEncodeCredentialRoundTripsWithDecodePassword(t *testing.T) {
	for _, et := range []session.EncryptType{session.EncryptNone, session.EncryptRSA} {
		sess, err := session.Accept()
		if err != nil {
			t.Fatal(err)
		}
		payload, err := EncodeCredential(sess, et, "host-uuid-1234")
		if err != nil {
			t.Fatal(err)
		}
		sb, err := DecodePassword(sess, et, payload)
		if err != nil {
			t.Fatal(err)
		}
		if string(sb.Bytes()) != "host-uuid-1234" {
			t.Errorf("encryptType %v: got %q", et, sb.Bytes())
		}
	}
}

func TestDecodePasswordRejectsBadHex(t *testing.T) {
	sess, err := session.Accept()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodePassword(sess, session.EncryptNone, "not-hex!!"); err == nil {
		t.Error("expected error for malformed hex payload")
	}
}
