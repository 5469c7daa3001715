package schema

import (
	"context"
	"fmt"

	"github.com/Will-Luck/sally-agent/internal/acdc"
	"github.com/Will-Luck/sally-agent/internal/collab"
)

// VLEIValidator validates credentials in the vLEI ecosystem chain:
// QVI -> LegalEntity -> OOR-Auth -> OOR.
type VLEIValidator struct {
	Registry  *Registry
	Store     collab.ACDCStore
	Authority string // AID of the known-valid root issuer (the QVI's issuer)
}

// ValidateQualifiedVLEIIssuer checks a QVI credential's schema and that it
// was issued by the known valid root issuer.
func (v *VLEIValidator) ValidateQualifiedVLEIIssuer(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyVLEIQVI)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema %s for QVI credential %s", cred.SchemaSAID, cred.SAID)
	}
	if cred.Issuer != v.Authority {
		return fmt.Errorf("QVI credential not issued by known valid issuer")
	}
	return nil
}

// ValidateLegalEntity checks a LE credential's schema, then walks its QVI
// chain edge.
func (v *VLEIValidator) ValidateLegalEntity(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyVLEILE)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema %s for LE credential %s", cred.SchemaSAID, cred.SAID)
	}
	return v.validateQVIChain(ctx, cred, map[string]bool{cred.SAID: true})
}

// ValidateOfficialRoleAuth checks an OOR-Auth credential's schema, then
// resolves and validates the LE credential it points to.
func (v *VLEIValidator) ValidateOfficialRoleAuth(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyVLEIOORAuth)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema %s for OOR-Auth credential %s", cred.SchemaSAID, cred.SAID)
	}
	return v.validateLEChain(ctx, cred, map[string]bool{cred.SAID: true})
}

// ValidateOfficialRole checks an OOR credential's schema, fetches its AUTH
// edge, verifies the recipient/personLegalName/officialRole attributes
// match, and validates the AUTH credential in turn.
func (v *VLEIValidator) ValidateOfficialRole(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyVLEIOOR)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema %s for OOR credential %s", cred.SchemaSAID, cred.SAID)
	}

	asaid := cred.Chain("auth")
	if asaid == "" {
		return fmt.Errorf("OOR credential %s has no auth edge", cred.SAID)
	}
	auth, ok, err := v.Store.Get(ctx, asaid)
	if err != nil {
		return fmt.Errorf("fetch AUTH credential %s: %w", asaid, err)
	}
	if !ok {
		return fmt.Errorf("AUTH credential %s not found for OOR credential %s", asaid, cred.SAID)
	}

	if auth.Attr("AID") != cred.Attr("i") {
		return fmt.Errorf("invalid issuee %s doesn't match AUTH value of %s for OOR credential %s",
			cred.Attr("i"), auth.Attr("AID"), cred.SAID)
	}
	if auth.Attr("personLegalName") != cred.Attr("personLegalName") {
		return fmt.Errorf("invalid personLegalName %s for OOR credential %s",
			cred.Attr("personLegalName"), cred.SAID)
	}
	if auth.Attr("officialRole") != cred.Attr("officialRole") {
		return fmt.Errorf("invalid role %s for OOR credential %s", cred.Attr("officialRole"), cred.SAID)
	}

	return v.ValidateOfficialRoleAuth(ctx, auth)
}

// validateQVIChain resolves a credential's "qvi" edge and validates it as a
// QVI credential. visited guards against a cyclic edge graph.
func (v *VLEIValidator) validateQVIChain(ctx context.Context, cred acdc.Credential, visited map[string]bool) error {
	qsaid := cred.Chain("qvi")
	if qsaid == "" {
		return fmt.Errorf("credential %s has no qvi edge", cred.SAID)
	}
	if visited[qsaid] {
		return fmt.Errorf("cyclic credential chain detected at %s", qsaid)
	}
	visited[qsaid] = true

	qcred, ok, err := v.Store.Get(ctx, qsaid)
	if err != nil {
		return fmt.Errorf("fetch QVI credential %s: %w", qsaid, err)
	}
	if !ok {
		return fmt.Errorf("QVI credential %s not found for credential %s", qsaid, cred.SAID)
	}
	return v.ValidateQualifiedVLEIIssuer(ctx, qcred)
}

// validateLEChain resolves a credential's "le" edge and validates it as a LE
// credential (which itself walks the QVI chain). visited guards against a
// cyclic edge graph.
func (v *VLEIValidator) validateLEChain(ctx context.Context, cred acdc.Credential, visited map[string]bool) error {
	lesaid := cred.Chain("le")
	if lesaid == "" {
		return fmt.Errorf("credential %s has no le edge", cred.SAID)
	}
	if visited[lesaid] {
		return fmt.Errorf("cyclic credential chain detected at %s", lesaid)
	}
	visited[lesaid] = true

	le, ok, err := v.Store.Get(ctx, lesaid)
	if err != nil {
		return fmt.Errorf("fetch LE credential %s: %w", lesaid, err)
	}
	if !ok {
		return fmt.Errorf("LE credential %s not found for AUTH credential %s", lesaid, cred.SAID)
	}
	said, err := v.Registry.SAID(acdc.FamilyVLEILE)
	if err != nil {
		return err
	}
	if le.SchemaSAID != said {
		return fmt.Errorf("invalid schema %s for LE credential %s", le.SchemaSAID, le.SAID)
	}
	return v.validateQVIChain(ctx, le, visited)
}

// QVIPayload builds the webhook payload for a newly presented QVI credential.
func QVIPayload(cred acdc.Credential) map[string]any {
	return map[string]any{
		"schema":         cred.SchemaSAID,
		"issuer":         cred.Issuer,
		"issueTimestamp": cred.IssuanceTimestamp,
		"credential":     cred.SAID,
		"recipient":      cred.Attr("i"),
		"LEI":            cred.Attr("LEI"),
	}
}

// EntityPayload builds the webhook payload for a newly presented LE credential.
func EntityPayload(cred acdc.Credential) map[string]any {
	return map[string]any{
		"schema":         cred.SchemaSAID,
		"issuer":         cred.Issuer,
		"issueTimestamp": cred.IssuanceTimestamp,
		"credential":     cred.SAID,
		"recipient":      cred.Attr("i"),
		"qviCredential":  cred.Chain("qvi"),
		"LEI":            cred.Attr("LEI"),
	}
}

// AuthPayload builds the webhook payload for a newly presented OOR-Auth
// credential.
func AuthPayload(cred acdc.Credential) map[string]any {
	return map[string]any{
		"schema":                cred.SchemaSAID,
		"issuer":                cred.Issuer,
		"issueTimestamp":        cred.IssuanceTimestamp,
		"credential":            cred.SAID,
		"recipient":             cred.Attr("i"),
		"legalEntityCredential": cred.Chain("le"),
		"LEI":                   cred.Attr("LEI"),
	}
}

// RoleCredentialPayload builds the webhook payload for a newly presented OOR
// credential, walking the auth -> le -> qvi chain to gather every SAID in
// the chain of custody.
func RoleCredentialPayload(ctx context.Context, store collab.ACDCStore, cred acdc.Credential) (map[string]any, error) {
	asaid := cred.Chain("auth")
	auth, ok, err := store.Get(ctx, asaid)
	if err != nil {
		return nil, fmt.Errorf("fetch AUTH credential %s: %w", asaid, err)
	}
	if !ok {
		return nil, fmt.Errorf("AUTH credential %s not found for OOR credential %s", asaid, cred.SAID)
	}

	lesaid := auth.Chain("le")
	le, ok, err := store.Get(ctx, lesaid)
	if err != nil {
		return nil, fmt.Errorf("fetch LE credential %s: %w", lesaid, err)
	}
	if !ok {
		return nil, fmt.Errorf("LE credential %s not found for AUTH credential %s", lesaid, asaid)
	}
	qsaid := le.Chain("qvi")

	return map[string]any{
		"schema":                cred.SchemaSAID,
		"issuer":                cred.Issuer,
		"issueTimestamp":        cred.IssuanceTimestamp,
		"credential":            cred.SAID,
		"recipient":             cred.Attr("i"),
		"authCredential":        asaid,
		"qviCredential":         qsaid,
		"legalEntityCredential": lesaid,
		"LEI":                   cred.Attr("LEI"),
		"personLegalName":       cred.Attr("personLegalName"),
		"officialRole":          cred.Attr("officialRole"),
	}, nil
}
