// Package registry serves DID documents hosted in the local document
// registry (internal/storage) and allocates new hosted identities.
package registry

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/algorithm"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/signature"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/storage"
)

// DefaultMethod is the DID method the registry allocates identifiers under.
const DefaultMethod = "plc"

// Resolver implements resolver.MethodResolver over a storage.Store.
type Resolver struct {
	method string
	store  storage.Store
}

// New returns a Resolver answering method from store.
func New(method string, store storage.Store) *Resolver {
	if method == "" {
		method = DefaultMethod
	}
	return &Resolver{method: method, store: store}
}

func (r *Resolver) Method() string { return r.method }

// Resolve looks the DID up in the registry. Deactivated documents are still
// returned, flagged in the document metadata.
func (r *Resolver) Resolve(ctx context.Context, id did.URL, _ resolver.Options) model.ResolutionResult {
	rec, err := r.store.GetDocument(ctx, id.URI)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.ResolutionError(model.ErrorNotFound, fmt.Sprintf("%s is not registered", id.URI))
		}
		return model.ResolutionError(model.ErrorInternal, fmt.Sprintf("registry lookup: %v", err))
	}
	return model.Resolved(rec.Document, rec.Metadata)
}

// Identity is a freshly registered DID with its signing key. The private key
// is returned once and never stored.
type Identity struct {
	DID        string
	KeyID      string
	PrivateKey ed25519.PrivateKey
	Document   model.Document
	Metadata   model.DocumentMetadata
}

// Signer returns the token signer for the registered key.
func (id Identity) Signer() signature.Signer {
	return signature.Signer{
		DID:       id.DID,
		KeyID:     id.KeyID,
		Algorithm: algorithm.EdDSA,
		Curve:     algorithm.CurveEd25519,
		Key:       id.PrivateKey,
	}
}

// Register allocates a did:plc identifier with a new Ed25519 key, stores its
// document and returns the identity.
func Register(ctx context.Context, store storage.Store, now time.Time) (Identity, error) {
	didID, err := did.GeneratePLC()
	if err != nil {
		return Identity{}, fmt.Errorf("allocate did: %w", err)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generate key: %w", err)
	}
	multikey, err := algorithm.EncodeMultikey(pub)
	if err != nil {
		return Identity{}, err
	}

	vmID := didID + "#keys-1"
	ref := []model.VerificationReference{model.Ref(vmID)}
	doc := model.Document{
		Context: []string{model.ContextDIDv1, "https://w3id.org/security/multikey/v1"},
		ID:      didID,
		VerificationMethod: []model.VerificationMethod{{
			ID:                 vmID,
			Type:               algorithm.TypeMultikey,
			Controller:         didID,
			PublicKeyMultibase: multikey,
		}},
		Authentication:  ref,
		AssertionMethod: ref,
	}
	createdAt := now.UTC().Format(time.RFC3339)
	meta := model.DocumentMetadata{Created: createdAt, Updated: createdAt, VersionID: "1"}

	if err := store.CreateDocument(ctx, storage.Record{DID: didID, Document: doc, Metadata: meta}); err != nil {
		return Identity{}, fmt.Errorf("store document: %w", err)
	}
	return Identity{DID: didID, KeyID: vmID, PrivateKey: priv, Document: doc, Metadata: meta}, nil
}

// Deactivate marks a registered DID as deactivated and bumps its version.
// Deactivating an already deactivated DID is a no-op.
func Deactivate(ctx context.Context, store storage.Store, didURI string, now time.Time) (model.DocumentMetadata, error) {
	rec, err := store.GetDocument(ctx, didURI)
	if err != nil {
		return model.DocumentMetadata{}, err
	}
	if rec.Metadata.Deactivated {
		return rec.Metadata, nil
	}
	version, _ := strconv.Atoi(rec.Metadata.VersionID)
	rec.Metadata.Deactivated = true
	rec.Metadata.Updated = now.UTC().Format(time.RFC3339)
	rec.Metadata.VersionID = strconv.Itoa(version + 1)
	if err := store.UpdateDocument(ctx, rec); err != nil {
		return model.DocumentMetadata{}, err
	}
	return rec.Metadata, nil
}
