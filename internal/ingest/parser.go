// Package ingest implements the concrete collab.Parser: it decodes a grant
// notice's embedded anchoring event, issuance event, and credential body,
// feeding the issuance event into the local TEL cache and the credential
// body into the local ACDC cache before handing the parsed credentials back
// to Notice Intake.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Will-Luck/sally-agent/internal/acdc"
	"github.com/Will-Luck/sally-agent/internal/collab"
	"github.com/Will-Luck/sally-agent/internal/localstore"
)

// grantMessage is the wire shape of a "/exn/ipex/grant" notice body: three
// labelled embedded sub-messages plus the attached credential attributes.
type grantMessage struct {
	Anc  json.RawMessage `json:"anc"`
	Iss  issEvent        `json:"iss"`
	ACDC acdcBody        `json:"acdc"`
}

type issEvent struct {
	Regi string `json:"regi"`
	Said string `json:"said"`
}

type acdcBody struct {
	SAID              string            `json:"said"`
	SchemaSAID        string            `json:"schema_said"`
	Issuer            string            `json:"issuer"`
	Issuee            string            `json:"issuee,omitempty"`
	IssuanceTimestamp string            `json:"issuance_timestamp"`
	Attributes        map[string]string `json:"attributes"`
	Chains            map[string]string `json:"chains"`
	Regi              string            `json:"regi"`
}

// Parser decodes grant notices and advances the local ACDC/TEL caches as a
// side effect, mirroring the way a grant resolution advances the KEL/TEL/
// ACDC stores before the presentation escrow processor ever runs.
type Parser struct {
	Store *localstore.Store
}

// ParseOne implements collab.Parser.
func (p *Parser) ParseOne(_ context.Context, raw []byte) ([]acdc.Credential, error) {
	var msg grantMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode grant notice: %w", err)
	}
	if msg.ACDC.SAID == "" {
		return nil, fmt.Errorf("decode grant notice: missing acdc.said")
	}

	cred := acdc.Credential{
		SAID:       msg.ACDC.SAID,
		SchemaSAID: msg.ACDC.SchemaSAID,
		Issuer:     msg.ACDC.Issuer,
		Issuee:     msg.ACDC.Issuee,
		Attributes: msg.ACDC.Attributes,
		Chains:     msg.ACDC.Chains,
		Regi:       msg.ACDC.Regi,
	}
	if ts, err := time.Parse(time.RFC3339, msg.ACDC.IssuanceTimestamp); err == nil {
		cred.IssuanceTimestamp = ts
	}

	if p.Store != nil {
		if err := p.Store.Seed(cred); err != nil {
			return nil, fmt.Errorf("seed credential cache: %w", err)
		}
		regi := msg.Iss.Regi
		if regi == "" {
			regi = cred.Regi
		}
		if regi != "" {
			if err := p.Store.SetIssued(regi, cred.SAID); err != nil {
				return nil, fmt.Errorf("seed tel cache: %w", err)
			}
		}
	}

	return []acdc.Credential{cred}, nil
}

var _ collab.Parser = (*Parser)(nil)
