package key

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/algorithm"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

func resolve(t *testing.T, s string) model.ResolutionResult {
	t.Helper()
	id, ok := did.Parse(s)
	require.True(t, ok, s)
	return New().Resolve(context.Background(), id, resolver.Options{})
}

func TestResolveEd25519(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := DID(pub)
	require.NoError(t, err)

	res := resolve(t, id)
	require.False(t, res.Failed(), res.ResolutionMetadata.ErrorMessage)
	doc := res.Document
	assert.Equal(t, id, doc.ID)
	require.Len(t, doc.VerificationMethod, 1)

	vm := doc.VerificationMethod[0]
	assert.Equal(t, id+"#"+id[len("did:key:"):], vm.ID)
	assert.Equal(t, algorithm.TypeMultikey, vm.Type)

	pk, err := algorithm.FromVerificationMethod(vm)
	require.NoError(t, err)
	assert.Equal(t, ed25519.PublicKey(pub), pk.Key)

	for _, rel := range []string{model.RelationshipAuthentication, model.RelationshipAssertionMethod,
		model.RelationshipCapabilityInvocation, model.RelationshipCapabilityDelegation} {
		assert.Equal(t, []model.VerificationMethod{vm}, doc.Relationship(rel), rel)
	}
	assert.Empty(t, doc.Relationship(model.RelationshipKeyAgreement))
}

func TestResolveSecp256k1(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	id, err := DID(priv.PubKey())
	require.NoError(t, err)
	assert.Contains(t, id, "did:key:zQ3s")

	res := resolve(t, id)
	require.False(t, res.Failed())
	pk, err := algorithm.FromVerificationMethod(res.Document.VerificationMethod[0])
	require.NoError(t, err)
	assert.Equal(t, algorithm.ES256K, pk.Algorithm)
}

func TestResolveInvalid(t *testing.T) {
	for _, s := range []string{
		"did:key:abc",
		"did:key:z111",
		"did:key:zQ3sh",
		"did:key:mAQID",
	} {
		res := resolve(t, s)
		assert.Equal(t, model.ErrorInvalidDID, res.ResolutionMetadata.Error, s)
		assert.Nil(t, res.Document, s)
	}
}
