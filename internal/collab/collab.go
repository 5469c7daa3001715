// Package collab defines the narrow interfaces the pipeline depends on for
// everything outside its own escrow logic: the local credential/TEL state,
// wire parsing, notification transport, and message signing. Production
// implementations live alongside their concrete infrastructure
// (internal/transport, internal/signing); tests use hand-written mocks.
package collab

import (
	"context"

	"github.com/Will-Luck/sally-agent/internal/acdc"
)

// ACDCStore resolves credentials by SAID from local verified storage. It is
// the read side of the agent's view onto the KEL-backed credential registry.
type ACDCStore interface {
	// Get returns the credential for said, or ok=false if not yet locally
	// verifiable (still missing from the KEL/registry).
	Get(ctx context.Context, said string) (cred acdc.Credential, ok bool, err error)
}

// TELEngine resolves the transaction event log state of a credential within
// its issuing registry.
type TELEngine interface {
	State(ctx context.Context, regi, said string) (acdc.TELState, error)

	// DrainRevocationCues returns every revocation cue queued since the last
	// call and clears the queue: a cue is delivered to exactly one caller.
	// The core routes each cue into the rev escrow table so the Revocation
	// Watcher picks it up on its next sweep.
	DrainRevocationCues(ctx context.Context) ([]RevocationCue, error)
}

// RevocationCue reports that said, within registry Regi, was just observed
// transitioning to revoked — the production equivalent of the original
// TEL verifier's cues deque, here surfaced through TELEngine instead.
type RevocationCue struct {
	Regi string
	SAID string
}

// Parser turns a raw inbound presentation notice (an IPEX grant payload, in
// whatever wire form the transport delivered it) into zero or more
// credentials, preserving the anchor/issuance order in which they appeared.
type Parser interface {
	ParseOne(ctx context.Context, raw []byte) ([]acdc.Credential, error)
}

// Notice is a single inbound presentation notice pulled off the
// NotificationQueue, tagged with its route so Notice Intake can dispatch it.
type Notice struct {
	ID    string
	Route string
	Body  []byte
}

// NotificationQueue abstracts the transport that delivers presentation
// notices to the agent: a direct HTTP POST endpoint or an indirect MQTT
// mailbox poller, selected by AGENT_MODE.
type NotificationQueue interface {
	// Next returns the next unconsumed notice, or ok=false if the queue is
	// currently empty.
	Next(ctx context.Context) (notice Notice, ok bool, err error)
	// Ack removes a notice from the queue once it has been fully processed,
	// regardless of the outcome of processing it.
	Ack(ctx context.Context, id string) error
}

// Signer produces Ed25519 signatures over a canonicalized HTTP message
// signature base. KeyID must be stable and known before the base is built,
// since the key ID is itself one of the signed parameters.
type Signer interface {
	KeyID(ctx context.Context) (string, error)
	Sign(ctx context.Context, sigBase []byte) (signature []byte, err error)
}
