package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

func resolve(t *testing.T, r *Resolver, s string) model.ResolutionResult {
	t.Helper()
	id, ok := did.Parse(s)
	require.True(t, ok, s)
	return r.Resolve(context.Background(), id, resolver.Options{})
}

func TestResolveBareDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1.0/identifiers/did:web:example.com", r.URL.Path)
		assert.Equal(t, model.ContentTypeDIDLDJSON, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/did+json; charset=utf-8")
		_, _ = w.Write([]byte(`{"id":"did:web:example.com","verificationMethod":[{"id":"#k","type":"Multikey"}]}`))
	}))
	defer srv.Close()

	r := New("web", srv.URL+"/")
	assert.Equal(t, "web", r.Method())

	// fragments never reach the upstream resolver
	res := resolve(t, r, "did:web:example.com#k")
	require.False(t, res.Failed(), res.ResolutionMetadata.ErrorMessage)
	assert.Equal(t, "did:web:example.com", res.Document.ID)
	assert.Equal(t, model.ContentTypeDIDJSON, res.ResolutionMetadata.ContentType)
	require.Len(t, res.Document.VerificationMethod, 1)
}

func TestResolveWrappedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"didDocument": {"id": "did:web:example.com:users:alice"},
			"didDocumentMetadata": {"versionId": "3", "updated": "2024-05-01T00:00:00Z"},
			"didResolutionMetadata": {"contentType": "application/did+ld+json"}
		}`))
	}))
	defer srv.Close()

	res := resolve(t, New("web", srv.URL), "did:web:example.com:users:alice")
	require.False(t, res.Failed())
	assert.Equal(t, "did:web:example.com:users:alice", res.Document.ID)
	assert.Equal(t, "3", res.DocumentMetadata.VersionID)
	assert.Equal(t, model.ContentTypeDIDLDJSON, res.ResolutionMetadata.ContentType)
}

func TestResolveStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		code   string
	}{
		{http.StatusNotFound, `{"didResolutionMetadata":{"error":"notFound","errorMessage":"no such DID"}}`, model.ErrorNotFound},
		{http.StatusBadRequest, ``, model.ErrorInvalidDID},
		{http.StatusNotAcceptable, ``, model.ErrorRepresentationNotSupported},
		{http.StatusInternalServerError, `boom`, model.ErrorInternal},
		{http.StatusBadGateway, ``, model.ErrorInternal},
		{http.StatusOK, `not json`, model.ErrorInternal},
		{http.StatusOK, `{"foo":"bar"}`, model.ErrorInternal},
		{http.StatusOK, `{"didResolutionMetadata":{"error":"methodNotSupported"}}`, model.ErrorMethodNotSupported},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		res := resolve(t, New("web", srv.URL), "did:web:example.com")
		srv.Close()

		assert.Equal(t, tc.code, res.ResolutionMetadata.Error, "status %d body %q", tc.status, tc.body)
		assert.Nil(t, res.Document)
	}
}

func TestResolveNotFoundMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"didResolutionMetadata":{"error":"notFound","errorMessage":"no such DID"}}`))
	}))
	defer srv.Close()

	res := resolve(t, New("web", srv.URL), "did:web:missing.example")
	assert.Equal(t, "no such DID", res.ResolutionMetadata.ErrorMessage)
}

func TestResolveDeactivated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"didDocument":{"id":"did:web:old.example"},"didDocumentMetadata":{}}`))
	}))
	defer srv.Close()

	res := resolve(t, New("web", srv.URL), "did:web:old.example")
	require.False(t, res.Failed())
	assert.True(t, res.DocumentMetadata.Deactivated)
}

func TestResolveTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	r := New("web", srv.URL, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	res := resolve(t, r, "did:web:slow.example")
	assert.Equal(t, model.ErrorInternal, res.ResolutionMetadata.Error)
}

func TestResolveThroughResolver(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"id":"did:web:example.com"}`))
	}))
	defer srv.Close()

	rv, err := resolver.New([]resolver.MethodResolver{New("web", srv.URL, WithUserAgent("custom-agent"))})
	require.NoError(t, err)

	res, err := rv.Resolve(context.Background(), "did:web:example.com")
	require.NoError(t, err)
	require.False(t, res.Failed())
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpstreamMessageTruncatesOnRuneBoundary(t *testing.T) {
	// 199 ASCII bytes then a two byte rune straddling the limit
	body := strings.Repeat("a", 199) + "é" + strings.Repeat("b", 50)

	msg := upstreamMessage([]byte(body))
	assert.True(t, utf8.ValidString(msg), "%q", msg)
	assert.Equal(t, strings.Repeat("a", 199), msg)

	assert.Equal(t, "short", upstreamMessage([]byte("  short \n")))
	assert.Len(t, upstreamMessage([]byte(strings.Repeat("x", 500))), maxUpstreamMessage)
}
