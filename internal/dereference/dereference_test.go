package dereference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

type staticMethod struct {
	docs map[string]model.Document
}

func (staticMethod) Method() string { return "example" }

func (m staticMethod) Resolve(_ context.Context, id did.URL, _ resolver.Options) model.ResolutionResult {
	doc, ok := m.docs[id.URI]
	if !ok {
		return model.ResolutionError(model.ErrorNotFound, "unknown DID")
	}
	return model.Resolved(doc, model.DocumentMetadata{VersionID: "7"})
}

func exampleDocument() model.Document {
	return model.Document{
		ID: "did:example:123",
		VerificationMethod: []model.VerificationMethod{{
			ID:                 "#key-1",
			Type:               "Multikey",
			Controller:         "did:example:123",
			PublicKeyMultibase: "z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK",
		}, {
			ID:         "did:example:123#key-abs",
			Type:       "JsonWebKey2020",
			Controller: "did:example:123",
		}},
		KeyAgreement: []model.VerificationReference{model.Embed(model.VerificationMethod{
			ID:   "did:example:123#agree",
			Type: "Multikey",
		})},
		Service: []model.Service{{
			ID:              "#hub",
			Type:            "LinkedDomains",
			ServiceEndpoint: "https://example.com",
		}},
	}
}

func newDereferencer(t *testing.T) *Dereferencer {
	t.Helper()
	r, err := resolver.New([]resolver.MethodResolver{staticMethod{docs: map[string]model.Document{
		"did:example:123": exampleDocument(),
	}}})
	require.NoError(t, err)
	return New(r)
}

func TestDereferenceRelativeFragment(t *testing.T) {
	d := newDereferencer(t)

	res, err := d.Dereference(context.Background(), "did:example:123#key-1")
	require.NoError(t, err)
	require.False(t, res.Failed(), res.DereferencingMetadata.ErrorMessage)

	vm, ok := res.Content.(model.VerificationMethod)
	require.True(t, ok, "expected a verification method, got %T", res.Content)
	assert.Equal(t, "#key-1", vm.ID)
	assert.Equal(t, "7", res.ContentMetadata.VersionID)
	assert.Equal(t, model.ContentTypeDIDLDJSON, res.DereferencingMetadata.ContentType)
}

func TestDereferenceMissingFragment(t *testing.T) {
	d := newDereferencer(t)

	res, err := d.Dereference(context.Background(), "did:example:123#key-2")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorNotFound, res.DereferencingMetadata.Error)
	assert.Nil(t, res.Content)
	assert.True(t, errors.Is(res.Err(), failure.NotFound))
}

func TestDereferenceAbsoluteAndInlineIDs(t *testing.T) {
	d := newDereferencer(t)
	ctx := context.Background()

	res, err := d.Dereference(ctx, "did:example:123#key-abs")
	require.NoError(t, err)
	require.IsType(t, model.VerificationMethod{}, res.Content)
	assert.Equal(t, "did:example:123#key-abs", res.Content.ResourceID())

	res, err = d.Dereference(ctx, "did:example:123#agree")
	require.NoError(t, err)
	require.IsType(t, model.VerificationMethod{}, res.Content)
	assert.Equal(t, "did:example:123#agree", res.Content.ResourceID())
}

func TestDereferenceService(t *testing.T) {
	d := newDereferencer(t)

	res, err := d.Dereference(context.Background(), "did:example:123#hub")
	require.NoError(t, err)
	svc, ok := res.Content.(model.Service)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", svc.ServiceEndpoint)
}

func TestDereferenceWholeDocument(t *testing.T) {
	d := newDereferencer(t)
	ctx := context.Background()

	for _, url := range []string{
		"did:example:123",
		"did:example:123/some/path",
		"did:example:123?versionId=1",
		// a query wins over the fragment
		"did:example:123?versionId=1#key-1",
		"did:example:123?#key-1",
	} {
		res, err := d.Dereference(ctx, url)
		require.NoError(t, err, url)
		doc, ok := res.Content.(model.Document)
		require.True(t, ok, "%s: got %T", url, res.Content)
		assert.Equal(t, "did:example:123", doc.ID, url)
	}
}

func TestDereferenceErrors(t *testing.T) {
	d := newDereferencer(t)
	ctx := context.Background()

	res, err := d.Dereference(ctx, "not-a-did#key-1")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorInvalidDIDURL, res.DereferencingMetadata.Error)
	assert.True(t, errors.Is(res.Err(), failure.InvalidDIDURL))

	// resolution errors propagate verbatim
	res, err = d.Dereference(ctx, "did:example:999#key-1")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorNotFound, res.DereferencingMetadata.Error)
	assert.Equal(t, "unknown DID", res.DereferencingMetadata.ErrorMessage)

	res, err = d.Dereference(ctx, "did:other:123#key-1")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorMethodNotSupported, res.DereferencingMetadata.Error)
	assert.True(t, errors.Is(res.Err(), failure.MethodNotSupported))
}
