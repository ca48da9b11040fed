// Package key resolves did:key identifiers. The document is derived from the
// identifier itself; no I/O is performed.
package key

import (
	"context"
	"crypto"
	"fmt"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/algorithm"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

// Method is the DID method name served by Resolver.
const Method = "key"

const contextMultikey = "https://w3id.org/security/multikey/v1"

// Resolver implements resolver.MethodResolver for did:key.
type Resolver struct{}

// New returns a did:key resolver.
func New() *Resolver { return &Resolver{} }

func (*Resolver) Method() string { return Method }

// Resolve expands id into a document with a single Multikey verification
// method. Identifiers that are not base58btc multikeys yield invalidDid.
func (*Resolver) Resolve(_ context.Context, id did.URL, _ resolver.Options) model.ResolutionResult {
	if id.ID == "" || id.ID[0] != 'z' {
		return model.ResolutionError(model.ErrorInvalidDID, "did:key identifiers must be base58btc multibase")
	}
	if _, err := algorithm.DecodeMultikey(id.ID); err != nil {
		return model.ResolutionError(model.ErrorInvalidDID, err.Error())
	}
	return model.Resolved(document(id.URI, id.ID), model.DocumentMetadata{})
}

// DID returns the did:key identifier for an Ed25519 or secp256k1 key.
func DID(pub crypto.PublicKey) (string, error) {
	multikey, err := algorithm.EncodeMultikey(pub)
	if err != nil {
		return "", fmt.Errorf("did:key: %w", err)
	}
	return "did:" + Method + ":" + multikey, nil
}

func document(didURI, multikey string) model.Document {
	vmID := didURI + "#" + multikey
	ref := model.Ref(vmID)
	return model.Document{
		Context: []string{model.ContextDIDv1, contextMultikey},
		ID:      didURI,
		VerificationMethod: []model.VerificationMethod{{
			ID:                 vmID,
			Type:               algorithm.TypeMultikey,
			Controller:         didURI,
			PublicKeyMultibase: multikey,
		}},
		Authentication:       []model.VerificationReference{ref},
		AssertionMethod:      []model.VerificationReference{ref},
		CapabilityInvocation: []model.VerificationReference{ref},
		CapabilityDelegation: []model.VerificationReference{ref},
	}
}
