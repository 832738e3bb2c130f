package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAccepts(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	secret := "s3cret"
	if !VerifySignature(body, sign(body, secret), secret) {
		t.Error("valid signature rejected")
	}
	// Deterministic: same body and secret verify again.
	if !VerifySignature(body, sign(body, secret), secret) {
		t.Error("valid signature rejected on replay")
	}
}

func TestVerifySignatureSingleBitMutation(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	secret := "s3cret"
	signature := sign(body, secret)

	for i := range body {
		mutated := make([]byte, len(body))
		copy(mutated, body)
		mutated[i] ^= 0x01
		if VerifySignature(mutated, signature, secret) {
			t.Fatalf("mutated body accepted at byte %d", i)
		}
	}

	if VerifySignature(body, signature, "s3creT") {
		t.Error("wrong secret accepted")
	}
}

func TestVerifySignatureFailsClosed(t *testing.T) {
	body := []byte("payload")
	if VerifySignature(body, sign(body, "secret"), "") {
		t.Error("missing secret must reject")
	}
	if VerifySignature(body, "", "secret") {
		t.Error("missing header must reject")
	}
	if VerifySignature(body, "sha1=abcdef", "secret") {
		t.Error("unsupported algorithm must reject")
	}
	if VerifySignature(body, "not-a-signature", "secret") {
		t.Error("malformed header must reject")
	}
}
