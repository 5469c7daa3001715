package schema

import (
	"context"
	"fmt"

	"github.com/Will-Luck/sally-agent/internal/acdc"
	"github.com/Will-Luck/sally-agent/internal/collab"
)

// Dispatcher routes a credential to the validator and payload builder
// registered for its resolved FamilyTag. It is the single entry point the
// Presentation Escrow Processor uses once a credential's schema SAID has
// been resolved against the Registry.
type Dispatcher struct {
	Registry *Registry
	VLEI     *VLEIValidator
	Abydos   *AbydosValidator
}

// NewDispatcher wires a Registry to fresh vLEI and Abydos validators
// sharing the same ACDCStore and authority AID.
func NewDispatcher(registry *Registry, store collab.ACDCStore, authority string) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		VLEI:     &VLEIValidator{Registry: registry, Store: store, Authority: authority},
		Abydos:   &AbydosValidator{Registry: registry, Store: store, Authority: authority},
	}
}

// Validate resolves cred's schema SAID to a family and runs that family's
// validator against it.
func (d *Dispatcher) Validate(ctx context.Context, cred acdc.Credential) (acdc.FamilyTag, error) {
	tag, err := d.Registry.Resolve(cred.SchemaSAID)
	if err != nil {
		return acdc.FamilyUnknown, err
	}

	switch tag {
	case acdc.FamilyVLEIQVI:
		return tag, d.VLEI.ValidateQualifiedVLEIIssuer(ctx, cred)
	case acdc.FamilyVLEILE:
		return tag, d.VLEI.ValidateLegalEntity(ctx, cred)
	case acdc.FamilyVLEIOORAuth:
		return tag, d.VLEI.ValidateOfficialRoleAuth(ctx, cred)
	case acdc.FamilyVLEIOOR:
		return tag, d.VLEI.ValidateOfficialRole(ctx, cred)
	case acdc.FamilyAbydosJourney:
		return tag, d.Abydos.ValidateJourney(ctx, cred)
	case acdc.FamilyAbydosRequest:
		return tag, d.Abydos.ValidateJourneyMarkRequest(ctx, cred)
	case acdc.FamilyAbydosMark:
		return tag, d.Abydos.ValidateJourneyMark(ctx, cred)
	case acdc.FamilyAbydosCharter:
		return tag, d.Abydos.ValidateJourneyCharter(ctx, cred)
	default:
		return tag, fmt.Errorf("no validator registered for family %s", tag)
	}
}

// BuildPayload constructs the webhook payload for cred, given its already
// resolved FamilyTag.
func (d *Dispatcher) BuildPayload(ctx context.Context, tag acdc.FamilyTag, cred acdc.Credential, store collab.ACDCStore) (map[string]any, error) {
	switch tag {
	case acdc.FamilyVLEIQVI:
		return QVIPayload(cred), nil
	case acdc.FamilyVLEILE:
		return EntityPayload(cred), nil
	case acdc.FamilyVLEIOORAuth:
		return AuthPayload(cred), nil
	case acdc.FamilyVLEIOOR:
		return RoleCredentialPayload(ctx, store, cred)
	case acdc.FamilyAbydosJourney:
		return TreasureHuntingJourneyPayload(cred), nil
	case acdc.FamilyAbydosRequest:
		return JourneyMarkRequestPayload(cred), nil
	case acdc.FamilyAbydosMark:
		return JourneyMarkPayload(cred), nil
	case acdc.FamilyAbydosCharter:
		return JourneyCharterPayload(ctx, store, cred)
	default:
		return nil, fmt.Errorf("no payload builder registered for family %s", tag)
	}
}
