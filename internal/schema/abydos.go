package schema

import (
	"context"
	"fmt"

	"github.com/Will-Luck/sally-agent/internal/acdc"
	"github.com/Will-Luck/sally-agent/internal/collab"
)

// AbydosValidator validates credentials in the Abydos tutorial chain:
// Journey -> JourneyMarkRequest -> JourneyMark -> JourneyCharter.
type AbydosValidator struct {
	Registry  *Registry
	Store     collab.ACDCStore
	Authority string // AID of the known-valid journey/charter issuer
}

// ValidateJourney checks a Journey credential's schema and issuer.
func (v *AbydosValidator) ValidateJourney(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyAbydosJourney)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema SAID %s for journey credential SAID: %s", cred.SchemaSAID, said)
	}
	if cred.Issuer != v.Authority {
		return fmt.Errorf("journey credential not issued by known valid issuer")
	}
	return nil
}

// ValidateJourneyMarkRequest checks a JourneyMarkRequest credential's
// schema, then walks its journey chain edge.
func (v *AbydosValidator) ValidateJourneyMarkRequest(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyAbydosRequest)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema SAID %s for journey mark request credential SAID: %s", cred.SchemaSAID, said)
	}
	return v.validateJourneyChain(ctx, cred, map[string]bool{cred.SAID: true})
}

// ValidateJourneyMark checks a JourneyMark credential's schema, then walks
// its request chain edge.
func (v *AbydosValidator) ValidateJourneyMark(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyAbydosMark)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema SAID %s for journey mark credential SAID: %s", cred.SchemaSAID, said)
	}
	return v.validateRequestChain(ctx, cred, map[string]bool{cred.SAID: true})
}

// ValidateJourneyCharter checks a JourneyCharter credential's schema and
// issuer, then walks both its mark and journey chain edges.
func (v *AbydosValidator) ValidateJourneyCharter(ctx context.Context, cred acdc.Credential) error {
	said, err := v.Registry.SAID(acdc.FamilyAbydosCharter)
	if err != nil {
		return err
	}
	if cred.SchemaSAID != said {
		return fmt.Errorf("invalid schema SAID %s for journey mark credential SAID: %s", cred.SchemaSAID, said)
	}
	if cred.Issuer != v.Authority {
		return fmt.Errorf("journey charter credential not issued by known valid issuer")
	}
	visited := map[string]bool{cred.SAID: true}
	if err := v.validateMarkChain(ctx, cred, visited); err != nil {
		return err
	}
	return v.validateJourneyChain(ctx, cred, visited)
}

func (v *AbydosValidator) validateJourneyChain(ctx context.Context, cred acdc.Credential, visited map[string]bool) error {
	jsaid := cred.Chain("journey")
	if jsaid == "" {
		return fmt.Errorf("credential %s has no journey edge", cred.SAID)
	}
	if visited[jsaid] {
		return fmt.Errorf("cyclic credential chain detected at %s", jsaid)
	}
	visited[jsaid] = true

	journey, ok, err := v.Store.Get(ctx, jsaid)
	if err != nil {
		return fmt.Errorf("fetch journey credential %s: %w", jsaid, err)
	}
	if !ok {
		return fmt.Errorf("journey credential not found for %s", cred.SAID)
	}
	return v.ValidateJourney(ctx, journey)
}

func (v *AbydosValidator) validateRequestChain(ctx context.Context, cred acdc.Credential, visited map[string]bool) error {
	rsaid := cred.Chain("request")
	if rsaid == "" {
		return fmt.Errorf("credential %s has no request edge", cred.SAID)
	}
	if visited[rsaid] {
		return fmt.Errorf("cyclic credential chain detected at %s", rsaid)
	}
	visited[rsaid] = true

	request, ok, err := v.Store.Get(ctx, rsaid)
	if err != nil {
		return fmt.Errorf("fetch journey mark request credential %s: %w", rsaid, err)
	}
	if !ok {
		return fmt.Errorf("journey mark request credential not found for %s", cred.SAID)
	}
	return v.ValidateJourneyMarkRequest(ctx, request)
}

func (v *AbydosValidator) validateMarkChain(ctx context.Context, cred acdc.Credential, visited map[string]bool) error {
	msaid := cred.Chain("mark")
	if msaid == "" {
		return fmt.Errorf("credential %s has no mark edge", cred.SAID)
	}
	if visited[msaid] {
		return fmt.Errorf("cyclic credential chain detected at %s", msaid)
	}
	visited[msaid] = true

	mark, ok, err := v.Store.Get(ctx, msaid)
	if err != nil {
		return fmt.Errorf("fetch journey mark credential %s: %w", msaid, err)
	}
	if !ok {
		return fmt.Errorf("journey mark credential not found for %s", cred.SAID)
	}
	// TODO add attribute validation like ValidateOfficialRole does for OOR.
	return v.ValidateJourneyMark(ctx, mark)
}

// TreasureHuntingJourneyPayload builds the webhook payload for a newly
// presented Journey credential.
func TreasureHuntingJourneyPayload(cred acdc.Credential) map[string]any {
	return map[string]any{
		"schema":          cred.SchemaSAID,
		"issuer":          cred.Issuer,
		"issueTimestamp":  cred.IssuanceTimestamp,
		"credential":      cred.SAID,
		"recipient":       cred.Attr("i"),
		"destination":     cred.Attr("destination"),
		"treasureSplit":   cred.Attr("treasureSplit"),
		"partyThreshold":  cred.Attr("partyThreshold"),
		"journeyEndorser": cred.Attr("journeyEndorser"),
	}
}

// JourneyMarkRequestPayload builds the webhook payload for a newly presented
// JourneyMarkRequest credential.
func JourneyMarkRequestPayload(cred acdc.Credential) map[string]any {
	return map[string]any{
		"schema":         cred.SchemaSAID,
		"issuer":         cred.Issuer,
		"issueTimestamp": cred.IssuanceTimestamp,
		"credential":     cred.SAID,
		"recipient":      cred.Attr("i"),
		"requester": map[string]string{
			"firstName": cred.Attr("requester.firstName"),
			"lastName":  cred.Attr("requester.lastName"),
			"nickname":  cred.Attr("requester.nickname"),
		},
		"desiredPartySize": cred.Attr("desiredPartySize"),
		"desiredSplit":     cred.Attr("desiredSplit"),
		"journeyCredential": cred.Chain("journey"),
	}
}

// JourneyMarkPayload builds the webhook payload for a newly presented
// JourneyMark credential. The journey SAID is read from the credential's
// own chain edges, not its attributes map.
func JourneyMarkPayload(cred acdc.Credential) map[string]any {
	return map[string]any{
		"schema":             cred.SchemaSAID,
		"issuer":             cred.Issuer,
		"issueTimestamp":     cred.IssuanceTimestamp,
		"credential":         cred.SAID,
		"recipient":          cred.Attr("i"),
		"journeyDestination": cred.Attr("journeyDestination"),
		"gatekeeper":         cred.Attr("gatekeeper"),
		"negotiatedSplit":    cred.Attr("negotiatedSplit"),
		"journeyCredential":  cred.Chain("journey"),
	}
}

// JourneyCharterPayload builds the webhook payload for a newly presented
// JourneyCharter credential, pulling attributes from its journey and
// journey-mark-request ancestors via the store.
func JourneyCharterPayload(ctx context.Context, store collab.ACDCStore, cred acdc.Credential) (map[string]any, error) {
	journeySaid := cred.Chain("journey")
	journey, ok, err := store.Get(ctx, journeySaid)
	if err != nil {
		return nil, fmt.Errorf("fetch journey credential %s: %w", journeySaid, err)
	}
	if !ok {
		return nil, fmt.Errorf("journey credential %s not found for charter %s", journeySaid, cred.SAID)
	}

	markSaid := cred.Chain("mark")
	mark, ok, err := store.Get(ctx, markSaid)
	if err != nil {
		return nil, fmt.Errorf("fetch mark credential %s: %w", markSaid, err)
	}
	if !ok {
		return nil, fmt.Errorf("mark credential %s not found for charter %s", markSaid, cred.SAID)
	}

	requestSaid := mark.Chain("request")
	request, ok, err := store.Get(ctx, requestSaid)
	if err != nil {
		return nil, fmt.Errorf("fetch request credential %s: %w", requestSaid, err)
	}
	if !ok {
		return nil, fmt.Errorf("request credential %s not found for mark %s", requestSaid, markSaid)
	}

	return map[string]any{
		"schema":          cred.SchemaSAID,
		"issuer":          cred.Issuer,
		"issueTimestamp":  cred.IssuanceTimestamp,
		"credential":      cred.SAID,
		"recipient":       cred.Attr("i"),
		"partySize":       cred.Attr("partySize"),
		"authorizerName":  cred.Attr("authorizerName"),
		"journeyCredential": journeySaid,
		"markCredential":    markSaid,
		"destination":     journey.Attr("destination"),
		"treasureSplit":   journey.Attr("treasureSplit"),
		"journeyEndorser": journey.Attr("journeyEndorser"),
		"firstName":       request.Attr("requester.firstName"),
		"lastName":        request.Attr("requester.lastName"),
		"nickname":        request.Attr("requester.nickname"),
	}, nil
}
