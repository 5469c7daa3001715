// Package signing builds the canonical HTTP message signature the Delivery
// Engine attaches to every webhook POST, signing it with the agent's own
// Ed25519 keypair through the collab.Signer interface. It has no
// signature-verification function.
package signing

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/Will-Luck/sally-agent/internal/collab"
)

// coveredFields lists the HTTP message components included in the signature
// base, in the exact order the agent and the webhook receiver must agree on.
var coveredFields = []string{"sally-resource", "@method", "@path", "sally-timestamp"}

// Headers holds the request metadata that is both sent as headers and fed
// into the signature base.
type Headers struct {
	Resource  string // the schema SAID of the credential this event describes (sent as Sally-Resource)
	Method    string // always POST
	Path      string // the URL path of the webhook
	Timestamp string // RFC3339/ISO-8601 timestamp string
}

// Result carries the signature and the Signature-Input header value a
// client attaches alongside the Signature header.
type Result struct {
	Signature      string // base64-encoded raw signature
	SignatureInput string // "sig0=(\"sally-resource\" ...);created=...;keyid=\"...\";alg=\"ed25519\""
	KeyID          string
}

// Sign builds the canonical signature base from hdrs and has signer produce
// an Ed25519 signature over it, returning the finished header values. The
// key ID is resolved before the base is built, since @signature-params
// itself names the key ID and so must be covered by the signature.
func Sign(ctx context.Context, signer collab.Signer, hdrs Headers, created time.Time) (Result, error) {
	keyID, err := signer.KeyID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve key id: %w", err)
	}

	base, params := signatureBase(hdrs, created, keyID)

	sig, err := signer.Sign(ctx, []byte(base))
	if err != nil {
		return Result{}, fmt.Errorf("sign request: %w", err)
	}

	return Result{
		Signature:      base64.StdEncoding.EncodeToString(sig),
		SignatureInput: "sig0=" + params,
		KeyID:          keyID,
	}, nil
}

// signatureBase constructs the exact byte sequence that is signed: one line
// per covered field as `"field": value`, followed by a final
// `"@signature-params": (...)` line naming the covered fields, the creation
// time, the key ID and the algorithm. Returns both the base and the
// standalone signature-params value (reused in the Signature-Input header).
func signatureBase(hdrs Headers, created time.Time, keyID string) (base string, params string) {
	values := map[string]string{
		"sally-resource":  hdrs.Resource,
		"@method":         strings.ToUpper(hdrs.Method),
		"@path":           hdrs.Path,
		"sally-timestamp": hdrs.Timestamp,
	}

	var lines []string
	var quoted []string
	for _, f := range coveredFields {
		lines = append(lines, fmt.Sprintf("%q: %s", f, values[f]))
		quoted = append(quoted, fmt.Sprintf("%q", f))
	}

	params = fmt.Sprintf("(%s);created=%d;keyid=%q;alg=%q",
		strings.Join(quoted, " "), created.Unix(), keyID, "ed25519")
	lines = append(lines, fmt.Sprintf("%q: %s", "@signature-params", params))

	return strings.Join(lines, "\n"), params
}

// KeypairSigner is a collab.Signer backed by a single Ed25519 keypair — the
// agent's own signing key, loaded at startup from its inception material.
type KeypairSigner struct {
	priv  ed25519.PrivateKey
	keyID string
}

// NewKeypairSigner constructs a Signer from a raw Ed25519 private key and
// the base64 public-key string used as its key ID.
func NewKeypairSigner(priv ed25519.PrivateKey, keyID string) *KeypairSigner {
	return &KeypairSigner{priv: priv, keyID: keyID}
}

// KeyID implements collab.Signer.
func (s *KeypairSigner) KeyID(_ context.Context) (string, error) {
	return s.keyID, nil
}

// Sign implements collab.Signer.
func (s *KeypairSigner) Sign(_ context.Context, sigBase []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, sigBase), nil
}

var _ collab.Signer = (*KeypairSigner)(nil)
