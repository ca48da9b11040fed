package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/dereference"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/signature"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/storage"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestRegisterAndResolve(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	identity, err := Register(ctx, store, now)
	require.NoError(t, err)
	assert.Regexp(t, `^did:plc:[a-z2-7]{24}$`, identity.DID)
	assert.Equal(t, identity.DID+"#keys-1", identity.KeyID)

	r := New("", store)
	assert.Equal(t, DefaultMethod, r.Method())

	id, ok := did.Parse(identity.DID)
	require.True(t, ok)
	res := r.Resolve(ctx, id, resolver.Options{})
	require.False(t, res.Failed(), res.ResolutionMetadata.ErrorMessage)
	assert.Equal(t, identity.DID, res.Document.ID)
	assert.Equal(t, "2025-06-01T00:00:00Z", res.DocumentMetadata.Created)
	assert.Equal(t, "1", res.DocumentMetadata.VersionID)
	assert.Len(t, res.Document.Relationship(model.RelationshipAssertionMethod), 1)
}

func TestResolveUnknown(t *testing.T) {
	id, _ := did.Parse("did:plc:aaaaaaaaaaaaaaaaaaaaaaaa")
	res := New("plc", storage.NewMemory()).Resolve(context.Background(), id, resolver.Options{})
	assert.Equal(t, model.ErrorNotFound, res.ResolutionMetadata.Error)
}

type brokenStore struct{ storage.Store }

func (brokenStore) GetDocument(context.Context, string) (storage.Record, error) {
	return storage.Record{}, errors.New("connection refused")
}

func TestResolveStoreFailure(t *testing.T) {
	id, _ := did.Parse("did:plc:aaaaaaaaaaaaaaaaaaaaaaaa")
	res := New("plc", brokenStore{}).Resolve(context.Background(), id, resolver.Options{})
	assert.Equal(t, model.ErrorInternal, res.ResolutionMetadata.Error)
	assert.Contains(t, res.ResolutionMetadata.ErrorMessage, "connection refused")
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	identity, err := Register(ctx, store, now)
	require.NoError(t, err)

	meta, err := Deactivate(ctx, store, identity.DID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, meta.Deactivated)
	assert.Equal(t, "2", meta.VersionID)
	assert.Equal(t, "2025-06-01T01:00:00Z", meta.Updated)

	meta, err = Deactivate(ctx, store, identity.DID, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2", meta.VersionID)

	_, err = Deactivate(ctx, store, "did:plc:unknown", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegisteredIdentitySignsVerifiableTokens(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	identity, err := Register(ctx, store, now)
	require.NoError(t, err)

	rv, err := resolver.New([]resolver.MethodResolver{New(DefaultMethod, store)})
	require.NoError(t, err)
	protocol := signature.New(dereference.New(rv), signature.WithClock(func() time.Time { return now }))

	token, err := protocol.Sign(ctx, map[string]any{
		"vc": map[string]any{
			"issuer":            identity.DID,
			"credentialSubject": map[string]any{"id": "did:example:subject"},
		},
	}, identity.Signer())
	require.NoError(t, err)

	verified, err := protocol.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, identity.DID, verified.Issuer)
	assert.Equal(t, "did:example:subject", verified.Subject)
	assert.Equal(t, identity.KeyID, verified.VerificationMethod.ID)
}
