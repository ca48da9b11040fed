// Package jwk resolves did:jwk identifiers, whose method-specific id is the
// base64url encoding of a public JWK.
package jwk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/algorithm"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

// Method is the DID method name served by Resolver.
const Method = "jwk"

const contextJWS2020 = "https://w3id.org/security/suites/jws-2020/v1"

// segments decodes ids the same way token segments are decoded: unpadded
// base64url, strictly.
var segments = jwt.NewParser(jwt.WithStrictDecoding())

// Resolver implements resolver.MethodResolver for did:jwk.
type Resolver struct{}

// New returns a did:jwk resolver.
func New() *Resolver { return &Resolver{} }

func (*Resolver) Method() string { return Method }

// Resolve decodes the embedded JWK into a document whose only verification
// method is "#0".
func (*Resolver) Resolve(_ context.Context, id did.URL, _ resolver.Options) model.ResolutionResult {
	raw, err := segments.DecodeSegment(id.ID)
	if err != nil {
		return model.ResolutionError(model.ErrorInvalidDID, "did:jwk identifier is not base64url")
	}
	var key model.JWK
	if err := json.Unmarshal(raw, &key); err != nil {
		return model.ResolutionError(model.ErrorInvalidDID, "did:jwk identifier is not a JWK")
	}
	if _, err := algorithm.FromJWK(key); err != nil {
		return model.ResolutionError(model.ErrorInvalidDID, err.Error())
	}
	return model.Resolved(document(id.URI, key), model.DocumentMetadata{})
}

// DID returns the did:jwk identifier for key.
func DID(key model.JWK) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("did:jwk: %w", err)
	}
	return "did:" + Method + ":" + new(jwt.Token).EncodeSegment(raw), nil
}

func document(didURI string, key model.JWK) model.Document {
	vmID := didURI + "#0"
	ref := []model.VerificationReference{model.Ref(vmID)}
	doc := model.Document{
		Context: []string{model.ContextDIDv1, contextJWS2020},
		ID:      didURI,
		VerificationMethod: []model.VerificationMethod{{
			ID:           vmID,
			Type:         algorithm.TypeJSONWebKey2020,
			Controller:   didURI,
			PublicKeyJwk: &key,
		}},
	}
	if key.Use != "sig" {
		doc.KeyAgreement = ref
	}
	if key.Use != "enc" {
		doc.Authentication = ref
		doc.AssertionMethod = ref
		doc.CapabilityInvocation = ref
		doc.CapabilityDelegation = ref
	}
	return doc
}
