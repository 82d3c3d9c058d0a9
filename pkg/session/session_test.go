package session

import "testing"

func TestAcceptGeneratesNonceAndKeypair(t *testing.T) {
	s, err := Accept()
	if err != nil {
		t.Fatal(err)
	}
	var zero [64]byte
	if s.Nonce == zero {
		t.Error("nonce was not populated")
	}
	if s.PublicKey == nil {
		t.Error("expected an RSA keypair to be generated")
	}
	if len(s.EncryptTypes) != 2 || s.EncryptTypes[0] != EncryptRSA {
		t.Errorf("EncryptTypes = %v", s.EncryptTypes)
	}
}

func TestSessionLineRoundTrip(t *testing.T) {
	s, err := Accept()
	if err != nil {
		t.Fatal(err)
	}
	line := s.Line()

	parsed, err := Parse(line)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Nonce != s.Nonce {
		t.Error("nonce mismatch after round trip")
	}
	if parsed.PublicKey == nil || parsed.PublicKey.N.Cmp(s.PublicKey.N) != 0 {
		t.Error("public key modulus mismatch after round trip")
	}
	if parsed.PublicKey.E != s.PublicKey.E {
		t.Error("public key exponent mismatch after round trip")
	}
	if len(parsed.EncryptTypes) != 2 {
		t.Errorf("EncryptTypes = %v", parsed.EncryptTypes)
	}
}

func TestParseRejectsNonSessionLine(t *testing.T) {
	if _, err := Parse("1 JOB_NEW name=foo"); err == nil {
		t.Error("expected error for non-SESSION line")
	}
}

func TestSelectEncryptType(t *testing.T) {
	s, err := Accept()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SelectEncryptType(EncryptRSA); err != nil {
		t.Fatal(err)
	}
	if s.Selected != EncryptRSA {
		t.Errorf("Selected = %v", s.Selected)
	}

	s2 := &Session{EncryptTypes: []EncryptType{EncryptNone}}
	if err := s2.SelectEncryptType(EncryptRSA); err == nil {
		t.Error("expected error selecting un-advertised encryptType")
	}
}
