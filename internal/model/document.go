// Package model defines the DID data shapes shared by the resolver, the
// dereferencer and the signature protocol. Documents are owned by whichever
// method resolver produced them and are treated as read-only values here.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Default JSON-LD context for DID documents.
const ContextDIDv1 = "https://www.w3.org/ns/did/v1"

// Verification relationship names as they appear in a DID document.
const (
	RelationshipAuthentication       = "authentication"
	RelationshipAssertionMethod      = "assertionMethod"
	RelationshipKeyAgreement         = "keyAgreement"
	RelationshipCapabilityInvocation = "capabilityInvocation"
	RelationshipCapabilityDelegation = "capabilityDelegation"
)

// Document is a DID document: the verification methods, services and
// verification relationships published for a DID.
type Document struct {
	Context              any                     `json:"@context,omitempty"`
	ID                   string                  `json:"id"`
	AlsoKnownAs          []string                `json:"alsoKnownAs,omitempty"`
	Controller           any                     `json:"controller,omitempty"`
	VerificationMethod   []VerificationMethod    `json:"verificationMethod,omitempty"`
	Authentication       []VerificationReference `json:"authentication,omitempty"`
	AssertionMethod      []VerificationReference `json:"assertionMethod,omitempty"`
	KeyAgreement         []VerificationReference `json:"keyAgreement,omitempty"`
	CapabilityInvocation []VerificationReference `json:"capabilityInvocation,omitempty"`
	CapabilityDelegation []VerificationReference `json:"capabilityDelegation,omitempty"`
	Service              []Service               `json:"service,omitempty"`
}

// VerificationMethod is a named public key entry within a DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller,omitempty"`
	PublicKeyJwk       *JWK   `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
	PublicKeyBase58    string `json:"publicKeyBase58,omitempty"`
}

// HasKeyMaterial reports whether the method exposes any public key encoding.
func (vm VerificationMethod) HasKeyMaterial() bool {
	return vm.PublicKeyJwk != nil || vm.PublicKeyMultibase != "" || vm.PublicKeyBase58 != ""
}

// JWK captures the public key members used for signature verification.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// Service is a service endpoint entry within a DID document.
type Service struct {
	ID              string `json:"id"`
	Type            any    `json:"type"`
	ServiceEndpoint any    `json:"serviceEndpoint"`
}

// VerificationReference is one entry of a verification relationship: either a
// bare reference to a verification method id or an inline method.
type VerificationReference struct {
	Reference string
	Inline    *VerificationMethod
}

// Ref returns a reference entry.
func Ref(id string) VerificationReference { return VerificationReference{Reference: id} }

// Embed returns an inline entry.
func Embed(vm VerificationMethod) VerificationReference { return VerificationReference{Inline: &vm} }

// ID returns the referenced or inline method id.
func (r VerificationReference) ID() string {
	if r.Inline != nil {
		return r.Inline.ID
	}
	return r.Reference
}

func (r VerificationReference) MarshalJSON() ([]byte, error) {
	if r.Inline != nil {
		return json.Marshal(r.Inline)
	}
	return json.Marshal(r.Reference)
}

func (r *VerificationReference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty verification reference")
	}
	switch data[0] {
	case '"':
		*r = VerificationReference{}
		return json.Unmarshal(data, &r.Reference)
	case '{':
		var vm VerificationMethod
		if err := json.Unmarshal(data, &vm); err != nil {
			return err
		}
		*r = VerificationReference{Inline: &vm}
		return nil
	default:
		return fmt.Errorf("verification reference must be a string or an object")
	}
}

// References returns the entries of the named verification relationship.
func (d *Document) References(relationship string) []VerificationReference {
	switch relationship {
	case RelationshipAuthentication:
		return d.Authentication
	case RelationshipAssertionMethod:
		return d.AssertionMethod
	case RelationshipKeyAgreement:
		return d.KeyAgreement
	case RelationshipCapabilityInvocation:
		return d.CapabilityInvocation
	case RelationshipCapabilityDelegation:
		return d.CapabilityDelegation
	default:
		return nil
	}
}

// Relationship resolves the named verification relationship to concrete
// methods. References are matched against the verification method list in
// both absolute ("did:x:y#k") and relative ("#k") form; dangling references
// are skipped.
func (d *Document) Relationship(relationship string) []VerificationMethod {
	refs := d.References(relationship)
	out := make([]VerificationMethod, 0, len(refs))
	for _, ref := range refs {
		if ref.Inline != nil {
			out = append(out, *ref.Inline)
			continue
		}
		if vm, ok := d.FindVerificationMethod(d.idForms(ref.Reference)...); ok {
			out = append(out, vm)
		}
	}
	return out
}

// FindVerificationMethod returns the first verification method whose id is
// one of ids, looking at the verification method list first and inline
// relationship entries second.
func (d *Document) FindVerificationMethod(ids ...string) (VerificationMethod, bool) {
	for _, vm := range d.VerificationMethod {
		if containsString(ids, vm.ID) {
			return vm, true
		}
	}
	for _, rel := range [][]VerificationReference{d.Authentication, d.AssertionMethod, d.KeyAgreement, d.CapabilityInvocation, d.CapabilityDelegation} {
		for _, ref := range rel {
			if ref.Inline != nil && containsString(ids, ref.Inline.ID) {
				return *ref.Inline, true
			}
		}
	}
	return VerificationMethod{}, false
}

// FindService returns the first service whose id is one of ids.
func (d *Document) FindService(ids ...string) (Service, bool) {
	for _, svc := range d.Service {
		if containsString(ids, svc.ID) {
			return svc, true
		}
	}
	return Service{}, false
}

// idForms expands a method id into its absolute and relative spellings.
func (d *Document) idForms(id string) []string {
	if len(id) > 0 && id[0] == '#' {
		return []string{id, d.ID + id}
	}
	if len(id) > len(d.ID) && id[:len(d.ID)] == d.ID && id[len(d.ID)] == '#' {
		return []string{id, id[len(d.ID):]}
	}
	return []string{id}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
