// Package acdc defines the credential data model: authentic chained data
// containers, their transaction event log state, and the closed set of
// schema families the agent knows how to validate.
package acdc

import "time"

// Credential is a parsed, cryptographically verified ACDC as handed to the
// pipeline by the collab.Parser collaborator. It carries enough of the
// credential's structure for chain validation and payload construction, but
// not the full KERI message envelope — that lives behind the ACDCStore and
// TELEngine collaborators.
type Credential struct {
	SAID              string            `json:"said"`
	SchemaSAID        string            `json:"schema_said"`
	Issuer            string            `json:"issuer"`
	Issuee             string            `json:"issuee,omitempty"`
	IssuanceTimestamp time.Time         `json:"issuance_timestamp"`
	Attributes        map[string]string `json:"attributes"`
	// Chains maps an edge name (e.g. "le", "qvi", "auth") to the SAID of the
	// credential it points to.
	Chains map[string]string `json:"chains"`
	// Regi is the registry identifier (TEL registry AID) this credential was
	// issued under, needed to query its TEL state.
	Regi string `json:"regi"`
}

// Attr looks up an attribute by name, returning "" if absent.
func (c *Credential) Attr(name string) string {
	if c.Attributes == nil {
		return ""
	}
	return c.Attributes[name]
}

// Chain looks up an edge's target SAID by name, returning "" if absent.
func (c *Credential) Chain(name string) string {
	if c.Chains == nil {
		return ""
	}
	return c.Chains[name]
}

// TELStatus is the transaction event log state of a credential's
// registration in its issuing registry.
type TELStatus int

const (
	// TELAbsent means the TEL has no record of this credential yet.
	TELAbsent TELStatus = iota
	// TELIssued means the credential is issued and not revoked.
	TELIssued
	// TELRevoked means the credential has been revoked.
	TELRevoked
)

func (s TELStatus) String() string {
	switch s {
	case TELIssued:
		return "issued"
	case TELRevoked:
		return "revoked"
	default:
		return "absent"
	}
}

// TELState is the result of a TEL lookup: a status plus, when revoked, the
// timestamp of the revocation event.
type TELState struct {
	Status              TELStatus
	RevocationTimestamp time.Time
}

// FamilyTag is a closed tagged variant identifying which schema-family
// validator and payload builder apply to a credential. New families are
// added by extending this set and the dispatch table in internal/schema,
// never by open string matching.
type FamilyTag int

const (
	// FamilyUnknown is the zero value; no validator is registered for it.
	FamilyUnknown FamilyTag = iota
	FamilyVLEIQVI
	FamilyVLEILE
	FamilyVLEIOORAuth
	FamilyVLEIOOR
	FamilyAbydosJourney
	FamilyAbydosRequest
	FamilyAbydosMark
	FamilyAbydosCharter
)

func (f FamilyTag) String() string {
	switch f {
	case FamilyVLEIQVI:
		return "vlei-qvi"
	case FamilyVLEILE:
		return "vlei-le"
	case FamilyVLEIOORAuth:
		return "vlei-oor-auth"
	case FamilyVLEIOOR:
		return "vlei-oor"
	case FamilyAbydosJourney:
		return "abydos-journey"
	case FamilyAbydosRequest:
		return "abydos-request"
	case FamilyAbydosMark:
		return "abydos-mark"
	case FamilyAbydosCharter:
		return "abydos-charter"
	default:
		return "unknown"
	}
}
