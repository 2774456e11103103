package signer

import (
	"bytes"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	msg := bytes.Repeat([]byte{0xAB}, 32)
	sig := SignBase64(kp.PrivateKey, msg)

	if err := VerifyBase64(kp.PublicKeyBase64(), sig, msg); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	msg := bytes.Repeat([]byte{0xAB}, 32)
	sig := SignBase64(kp.PrivateKey, msg)

	tampered := bytes.Repeat([]byte{0xAC}, 32)
	if err := VerifyBase64(kp.PublicKeyBase64(), sig, tampered); err == nil {
		t.Error("expected signature verification to fail on tampered message")
	}
}

func TestKeyPairFromPrivateBase64RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	restored, err := KeyPairFromPrivateBase64(kp.PrivateKeyBase64())
	if err != nil {
		t.Fatalf("restore keypair: %v", err)
	}
	if restored.PublicKeyBase64() != kp.PublicKeyBase64() {
		t.Errorf("restored public key mismatch")
	}
}
