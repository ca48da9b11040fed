package signature

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/algorithm"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/dereference"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/jws"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type docMethod struct {
	docs map[string]model.Document
}

func (docMethod) Method() string { return "example" }

func (m docMethod) Resolve(_ context.Context, id did.URL, _ resolver.Options) model.ResolutionResult {
	doc, ok := m.docs[id.URI]
	if !ok {
		return model.ResolutionError(model.ErrorNotFound, "")
	}
	return model.Resolved(doc, model.DocumentMetadata{})
}

type fixture struct {
	protocol *Protocol
	signer   Signer
	k1Signer Signer
	edKey    ed25519.PrivateKey
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	multikey, err := algorithm.EncodeMultikey(edPub)
	require.NoError(t, err)

	k1, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	k1JWK, err := algorithm.ToJWK(k1.PubKey())
	require.NoError(t, err)

	docs := map[string]model.Document{
		"did:example:abc": {
			ID: "did:example:abc",
			VerificationMethod: []model.VerificationMethod{
				{ID: "#key-1", Type: algorithm.TypeMultikey, Controller: "did:example:abc", PublicKeyMultibase: multikey},
				{ID: "#bare", Type: algorithm.TypeMultikey, Controller: "did:example:abc"},
			},
			AssertionMethod: []model.VerificationReference{model.Ref("#key-1")},
			Service:         []model.Service{{ID: "#svc", Type: "LinkedDomains", ServiceEndpoint: "https://example.com"}},
		},
		"did:example:k1": {
			ID: "did:example:k1",
			VerificationMethod: []model.VerificationMethod{
				{ID: "did:example:k1#key-1", Type: algorithm.TypeJSONWebKey2020, Controller: "did:example:k1", PublicKeyJwk: &k1JWK},
			},
		},
	}
	r, err := resolver.New([]resolver.MethodResolver{docMethod{docs: docs}})
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{
		protocol: New(dereference.New(r), opts...),
		signer: Signer{
			DID: "did:example:abc", KeyID: "#key-1",
			Algorithm: algorithm.EdDSA, Curve: algorithm.CurveEd25519, Key: edPriv,
		},
		k1Signer: Signer{
			DID: "did:example:k1", KeyID: "did:example:k1#key-1",
			Algorithm: algorithm.ES256K, Curve: algorithm.CurveSecp256k1, Key: k1,
		},
		edKey: edPriv,
	}
}

// signRaw builds a token from explicit header and claims, bypassing claim
// derivation.
func (f *fixture) signRaw(t *testing.T, header jws.Header, claims map[string]any, key crypto.PrivateKey) string {
	t.Helper()
	input, err := jws.Encode(header, claims)
	require.NoError(t, err)
	b, err := algorithm.Default().Lookup(algorithm.EdDSA, algorithm.CurveEd25519)
	require.NoError(t, err)
	sig, err := b.Sign(key, []byte(input))
	require.NoError(t, err)
	return jws.AppendSignature(input, sig)
}

func edHeader() jws.Header {
	return jws.Header{Alg: algorithm.EdDSA, Typ: jws.TypeJWT, Kid: "did:example:abc#key-1"}
}

func credentialPayload() map[string]any {
	return map[string]any{
		"vc": map[string]any{
			"@context":     []any{"https://www.w3.org/2018/credentials/v1"},
			"type":         []any{"VerifiableCredential"},
			"issuer":       "did:example:abc",
			"issuanceDate": "2025-01-01T00:00:00Z",
		},
		"credentialSubject": map[string]any{"id": "did:example:xyz"},
	}
}

func canonicalJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestSignParseVerifyRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.protocol.Sign(ctx, credentialPayload(), f.signer)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	parsed, err := f.protocol.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, algorithm.EdDSA, parsed.Header.Alg)
	assert.Equal(t, "did:example:abc#key-1", parsed.Header.Kid)
	assert.Equal(t, jws.TypeJWT, parsed.Header.Typ)
	assert.Equal(t, "did:example:abc", parsed.Claims[ClaimIssuer])
	assert.Equal(t, "did:example:xyz", parsed.Claims[ClaimSubject])
	assert.Equal(t, json.Number("1740830400"), parsed.Claims[ClaimIssuedAt])
	assert.Equal(t, json.Number("1735689600"), parsed.Claims[ClaimNotBefore])
	assert.Contains(t, parsed.Claims, "vc")
	assert.Contains(t, parsed.Claims, "credentialSubject")

	verified, err := f.protocol.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "did:example:abc", verified.Issuer)
	assert.Equal(t, "did:example:xyz", verified.Subject)
	assert.Equal(t, "#key-1", verified.VerificationMethod.ID)
	assert.JSONEq(t, canonicalJSON(t, parsed.Claims), canonicalJSON(t, verified.Payload))
}

func TestSignES256K(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload := map[string]any{"vc": map[string]any{
		"issuer":            "did:example:k1",
		"credentialSubject": map[string]any{"id": "did:example:holder"},
	}}
	token, err := f.protocol.Sign(ctx, payload, f.k1Signer)
	require.NoError(t, err)

	verified, err := f.protocol.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, algorithm.ES256K, verified.Header.Alg)
	assert.Equal(t, "did:example:holder", verified.Subject)
}

func TestSignDoesNotModifyPayloadAndRegisteredClaimsWin(t *testing.T) {
	f := newFixture(t)

	payload := credentialPayload()
	payload["iss"] = "did:example:impostor"
	payload["iat"] = 1
	payload["custom"] = "kept"
	before := canonicalJSON(t, payload)

	token, err := f.protocol.Sign(context.Background(), payload, f.signer)
	require.NoError(t, err)
	assert.Equal(t, before, canonicalJSON(t, payload))

	parsed, err := f.protocol.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "did:example:abc", parsed.Claims[ClaimIssuer])
	assert.Equal(t, json.Number("1740830400"), parsed.Claims[ClaimIssuedAt])
	assert.Equal(t, "kept", parsed.Claims["custom"])
}

func TestSignFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := f.signer
	bad.DID = "did:example:abc#key-1"
	_, err := f.protocol.Sign(ctx, credentialPayload(), bad)
	assert.True(t, errors.Is(err, failure.InvalidDID), "%v", err)

	bad = f.signer
	bad.Algorithm = "HS256"
	_, err = f.protocol.Sign(ctx, credentialPayload(), bad)
	assert.True(t, errors.Is(err, failure.UnsupportedAlgorithm), "%v", err)

	for _, keyID := range []string{"", "key-1", "did:example:other#key-1", "did:example:abc"} {
		bad = f.signer
		bad.KeyID = keyID
		_, err = f.protocol.Sign(ctx, credentialPayload(), bad)
		assert.True(t, errors.Is(err, failure.InvalidDIDURL), "key id %q: %v", keyID, err)
	}

	payload := credentialPayload()
	payload["vc"].(map[string]any)["expirationDate"] = "next tuesday"
	_, err = f.protocol.Sign(ctx, payload, f.signer)
	assert.Error(t, err)
}

func TestVerifyFlippedSignatureBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.protocol.Sign(ctx, credentialPayload(), f.signer)
	require.NoError(t, err)
	dot := strings.LastIndexByte(token, '.')
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	require.NoError(t, err)

	for i := range sig {
		flipped := append([]byte(nil), sig...)
		flipped[i] ^= 0xff
		tampered := token[:dot+1] + base64.RawURLEncoding.EncodeToString(flipped)

		_, err := f.protocol.Verify(ctx, tampered)
		require.Error(t, err, "byte %d", i)
		assert.Equal(t, failure.InvalidSignature, failure.KindOf(err), "byte %d: %v", i, err)
	}
}

func TestVerifyExpirationReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expiration := time.Date(2030, 5, 1, 12, 0, 0, 750_000_000, time.UTC)
	claims := func(exp int64) map[string]any {
		return map[string]any{
			"iss": "did:example:abc",
			"exp": exp,
			"vc": map[string]any{
				"issuer":         "did:example:abc",
				"expirationDate": expiration.Format(time.RFC3339Nano),
			},
		}
	}

	verified, err := f.protocol.Verify(ctx, f.signRaw(t, edHeader(), claims(expiration.Unix()), f.edKey))
	require.NoError(t, err)
	vc := verified.Payload["vc"].(map[string]any)
	assert.Equal(t, "2030-05-01T12:00:00Z", vc["expirationDate"])

	_, err = f.protocol.Verify(ctx, f.signRaw(t, edHeader(), claims(expiration.Unix()-1), f.edKey))
	assert.Equal(t, failure.ClaimMismatch, failure.KindOf(err), "%v", err)
}

func TestVerifyClaimMismatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]map[string]any{
		"nbf in the future": {
			"iss": "did:example:abc",
			"nbf": fixedNow.Add(time.Minute).Unix(),
		},
		"issuanceDate differs from nbf": {
			"iss": "did:example:abc",
			"nbf": fixedNow.Add(-time.Hour).Unix(),
			"vc":  map[string]any{"issuer": "did:example:abc", "issuanceDate": "2020-01-01T00:00:00Z"},
		},
		"issuer differs from iss": {
			"iss": "did:example:abc",
			"vc":  map[string]any{"issuer": map[string]any{"id": "did:example:other"}},
		},
		"credential without iss": {
			"vc": map[string]any{"issuer": "did:example:abc"},
		},
		"credential without issuer": {
			"iss": "did:example:abc",
			"vc":  map[string]any{"type": []any{"VerifiableCredential"}},
		},
		"holder differs from iss": {
			"iss": "did:example:abc",
			"vp":  map[string]any{"holder": "did:example:other"},
		},
		"iss is not the key's DID": {
			"iss": "did:example:other",
			"vc":  map[string]any{"issuer": "did:example:other"},
		},
		"exp not numeric": {
			"iss": "did:example:abc",
			"exp": "tomorrow",
		},
		"nbf at max int64": {
			"iss": "did:example:abc",
			"nbf": json.Number("9223372036854775807"),
		},
		"nbf beyond int64": {
			"iss": "did:example:abc",
			"nbf": json.Number("1e30"),
		},
		"nbf near max int64": {
			"iss": "did:example:abc",
			"nbf": int64(math.MaxInt64 - 1000),
		},
		"nbf after year 9999": {
			"iss": "did:example:abc",
			"nbf": maxNumericDate + 1,
		},
		"exp before year 1": {
			"iss": "did:example:abc",
			"exp": json.Number("-1e300"),
		},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.protocol.Verify(ctx, f.signRaw(t, edHeader(), claims, f.edKey))
			require.Error(t, err)
			assert.Equal(t, failure.ClaimMismatch, failure.KindOf(err), "%v", err)
		})
	}
}

func TestVerifyFillsAndOverridesFields(t *testing.T) {
	f := newFixture(t, WithIssuerFill())
	ctx := context.Background()

	verified, err := f.protocol.Verify(ctx, f.signRaw(t, edHeader(), map[string]any{
		"iss": "did:example:abc",
		"sub": "did:example:subject",
		"jti": "urn:uuid:1",
		"nbf": json.Number("1735689600.9"),
		"vc": map[string]any{
			"id":                "urn:uuid:stale",
			"credentialSubject": map[string]any{"id": "did:example:stale", "name": "x"},
		},
	}, f.edKey))
	require.NoError(t, err)

	vc := verified.Payload["vc"].(map[string]any)
	assert.Equal(t, "did:example:abc", vc["issuer"])
	assert.Equal(t, "urn:uuid:1", vc["id"])
	assert.Equal(t, "2025-01-01T00:00:00Z", vc["issuanceDate"])
	assert.Equal(t, map[string]any{"id": "did:example:subject", "name": "x"}, vc["credentialSubject"])
	assert.Equal(t, "did:example:subject", verified.Subject)

	// subject lists are left untouched
	verified, err = f.protocol.Verify(ctx, f.signRaw(t, edHeader(), map[string]any{
		"iss": "did:example:abc",
		"sub": "did:example:subject",
		"vc": map[string]any{
			"credentialSubject": []any{map[string]any{"id": "did:example:a"}},
		},
	}, f.edKey))
	require.NoError(t, err)
	vc = verified.Payload["vc"].(map[string]any)
	assert.Equal(t, []any{map[string]any{"id": "did:example:a"}}, vc["credentialSubject"])
}

func TestVerifyPresentation(t *testing.T) {
	f := newFixture(t)

	token, err := f.protocol.Sign(context.Background(), map[string]any{
		"vp": map[string]any{"id": "urn:uuid:vp-1", "type": []any{"VerifiablePresentation"}},
	}, f.signer)
	require.NoError(t, err)

	verified, err := f.protocol.Verify(context.Background(), token)
	require.NoError(t, err)
	vp := verified.Payload["vp"].(map[string]any)
	assert.Equal(t, "did:example:abc", vp["holder"])
	assert.Equal(t, "urn:uuid:vp-1", vp["id"])
	assert.Equal(t, "urn:uuid:vp-1", verified.Payload[ClaimID])
}

func TestVerifyKeyResolutionFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		kid   string
		inner failure.Kind
	}{
		"unknown DID":        {"did:example:missing#key-1", failure.NotFound},
		"unknown fragment":   {"did:example:abc#key-9", failure.NotFound},
		"unsupported method": {"did:nope:abc#key-1", failure.MethodNotSupported},
		"not a DID URL":      {"key-1", failure.InvalidDIDURL},
		"service, not a key": {"did:example:abc#svc", ""},
		"whole document":     {"did:example:abc", ""},
		"no key material":    {"did:example:abc#bare", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			header := edHeader()
			header.Kid = tc.kid
			_, err := f.protocol.Verify(ctx, f.signRaw(t, header, map[string]any{"iss": "did:example:abc"}, f.edKey))
			require.Error(t, err)
			assert.Equal(t, failure.KeyResolutionFailed, failure.KindOf(err), "%v", err)
			if tc.inner != "" {
				assert.True(t, errors.Is(err, tc.inner), "sub-reason lost: %v", err)
			}
		})
	}
}

func TestVerifyAlgorithmSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	header := edHeader()
	header.Alg = algorithm.ES256
	_, err := f.protocol.Verify(ctx, f.signRaw(t, header, map[string]any{"iss": "did:example:abc"}, f.edKey))
	assert.Equal(t, failure.UnsupportedAlgorithm, failure.KindOf(err), "%v", err)

	// a registry without EdDSA must not fall back to anything else
	limited := New(f.protocol.deref, WithClock(func() time.Time { return fixedNow }), WithAlgorithms(algorithm.NewRegistry()))
	_, err = limited.Verify(ctx, f.signRaw(t, edHeader(), map[string]any{"iss": "did:example:abc"}, f.edKey))
	assert.Equal(t, failure.UnsupportedAlgorithm, failure.KindOf(err), "%v", err)
}

func TestVerifyMalformed(t *testing.T) {
	f := newFixture(t)
	for _, token := range []string{"", "a.b", "a.b.c", "..."} {
		_, err := f.protocol.Verify(context.Background(), token)
		assert.Equal(t, failure.MalformedToken, failure.KindOf(err), "%q: %v", token, err)
	}
}

func TestVerifyExpiryCheckOption(t *testing.T) {
	expired := map[string]any{"iss": "did:example:abc", "exp": fixedNow.Add(-time.Hour).Unix()}

	f := newFixture(t)
	_, err := f.protocol.Verify(context.Background(), f.signRaw(t, edHeader(), expired, f.edKey))
	require.NoError(t, err, "expiry is not enforced by default")

	strict := newFixture(t, WithExpiryCheck(time.Minute))
	_, err = strict.protocol.Verify(context.Background(), strict.signRaw(t, edHeader(), expired, strict.edKey))
	assert.Equal(t, failure.ClaimMismatch, failure.KindOf(err), "%v", err)

	lenient := newFixture(t, WithExpiryCheck(2*time.Hour))
	_, err = lenient.protocol.Verify(context.Background(), lenient.signRaw(t, edHeader(), expired, lenient.edKey))
	assert.NoError(t, err)
}

func TestVerifyDateRangeLimits(t *testing.T) {
	f := newFixture(t, WithExpiryCheck(0))
	ctx := context.Background()

	_, err := f.protocol.Verify(ctx, f.signRaw(t, edHeader(), map[string]any{
		"iss": "did:example:abc",
		"exp": maxNumericDate,
		"nbf": minNumericDate,
	}, f.edKey))
	require.NoError(t, err)

	_, err = f.protocol.Verify(ctx, f.signRaw(t, edHeader(), map[string]any{
		"iss": "did:example:abc",
		"exp": json.Number("253402300799.5"),
	}, f.edKey))
	require.NoError(t, err)
}
