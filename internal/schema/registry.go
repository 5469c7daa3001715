// Package schema dispatches credentials to the validator and payload
// builder registered for their schema SAID, via the closed FamilyTag
// enumeration in internal/acdc.
package schema

import (
	"fmt"

	"github.com/Will-Luck/sally-agent/internal/acdc"
)

// Registry resolves a schema SAID to the FamilyTag it belongs to, and back.
// It is built once at startup from the AGENT_SCHEMA_MAPPINGS configuration
// and never mutated afterward.
type Registry struct {
	saidToTag map[string]acdc.FamilyTag
	tagToSAID map[acdc.FamilyTag]string
}

// knownTags is the closed set of family names a mapping entry may name.
var knownTags = map[string]acdc.FamilyTag{
	"vlei-qvi":       acdc.FamilyVLEIQVI,
	"vlei-le":        acdc.FamilyVLEILE,
	"vlei-oor-auth":  acdc.FamilyVLEIOORAuth,
	"vlei-oor":       acdc.FamilyVLEIOOR,
	"abydos-journey": acdc.FamilyAbydosJourney,
	"abydos-request": acdc.FamilyAbydosRequest,
	"abydos-mark":    acdc.FamilyAbydosMark,
	"abydos-charter": acdc.FamilyAbydosCharter,
}

// NewRegistry builds a Registry from a tag-name -> schema-SAID map. It
// refuses to build an empty registry: an agent with no schema mappings can
// validate nothing, which almost always indicates a missing configuration
// rather than an intentional no-op deployment.
func NewRegistry(mappings map[string]string) (*Registry, error) {
	if len(mappings) == 0 {
		return nil, fmt.Errorf("schema registry: no schema mappings configured")
	}

	r := &Registry{
		saidToTag: make(map[string]acdc.FamilyTag, len(mappings)),
		tagToSAID: make(map[acdc.FamilyTag]string, len(mappings)),
	}
	for name, said := range mappings {
		tag, ok := knownTags[name]
		if !ok {
			return nil, fmt.Errorf("schema registry: unknown family tag %q", name)
		}
		if said == "" {
			return nil, fmt.Errorf("schema registry: empty SAID for family %q", name)
		}
		r.saidToTag[said] = tag
		r.tagToSAID[tag] = said
	}
	return r, nil
}

// Resolve returns the FamilyTag registered for schemaSAID.
func (r *Registry) Resolve(schemaSAID string) (acdc.FamilyTag, error) {
	tag, ok := r.saidToTag[schemaSAID]
	if !ok {
		return acdc.FamilyUnknown, fmt.Errorf("no mapping found for schema %s", schemaSAID)
	}
	return tag, nil
}

// SAID returns the schema SAID registered for tag.
func (r *Registry) SAID(tag acdc.FamilyTag) (string, error) {
	said, ok := r.tagToSAID[tag]
	if !ok {
		return "", fmt.Errorf("no mapping found for family %s", tag)
	}
	return said, nil
}
