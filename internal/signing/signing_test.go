package signing

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestSignProducesVerifiableSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keyID := base64.StdEncoding.EncodeToString(pub)
	signer := NewKeypairSigner(priv, keyID)

	hdrs := Headers{
		Resource:  "iss",
		Method:    "post",
		Path:      "/",
		Timestamp: "2026-07-31T00:00:00.000000+00:00",
	}

	res, err := Sign(context.Background(), signer, hdrs, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if res.KeyID != keyID {
		t.Errorf("KeyID = %q, want %q", res.KeyID, keyID)
	}
	if !strings.HasPrefix(res.SignatureInput, "sig0=(") {
		t.Errorf("SignatureInput = %q, want sig0=(... prefix", res.SignatureInput)
	}
	for _, f := range coveredFields {
		if !strings.Contains(res.SignatureInput, `"`+f+`"`) {
			t.Errorf("SignatureInput %q missing covered field %q", res.SignatureInput, f)
		}
	}

	sigBytes, err := base64.StdEncoding.DecodeString(res.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	base, _ := signatureBase(hdrs, time.Unix(1000, 0), keyID)
	if !ed25519.Verify(pub, []byte(base), sigBytes) {
		t.Error("signature does not verify against the reconstructed base")
	}
}

func TestSignatureBaseFieldOrder(t *testing.T) {
	hdrs := Headers{Resource: "rev", Method: "POST", Path: "/hook", Timestamp: "ts"}
	base, _ := signatureBase(hdrs, time.Unix(0, 0), "keyXYZ")

	lines := strings.Split(base, "\n")
	if len(lines) != len(coveredFields)+1 {
		t.Fatalf("got %d lines, want %d", len(lines), len(coveredFields)+1)
	}
	for i, f := range coveredFields {
		if !strings.HasPrefix(lines[i], `"`+f+`"`) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], f)
		}
	}
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, `"@signature-params"`) {
		t.Errorf("last line = %q, want @signature-params", last)
	}
}
