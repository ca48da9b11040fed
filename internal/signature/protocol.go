// Package signature signs and verifies compact tokens carrying Verifiable
// Credentials and Presentations, resolving verification keys through DIDs.
//
// Verification runs as a fixed pipeline and stops at the first failing stage:
//
//	parse -> resolve key -> select algorithm -> check signature -> reconcile claims
//
// Each stage fails with its own failure.Kind so callers can tell a malformed
// token from an unresolvable key or a bad signature.
package signature

import (
	"context"
	"crypto"
	"fmt"
	"log/slog"
	"time"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/algorithm"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/jws"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

// Stage names a step of the verification pipeline.
type Stage string

const (
	StageParse     Stage = "parse"
	StageKey       Stage = "resolve_key"
	StageAlgorithm Stage = "select_algorithm"
	StageSignature Stage = "check_signature"
	StageClaims    Stage = "reconcile_claims"
)

// Dereferencer resolves DID URLs; *dereference.Dereferencer satisfies it.
type Dereferencer interface {
	Dereference(ctx context.Context, didURL string) (model.DereferencingResult, error)
}

// Signer identifies the key a token is signed with.
type Signer struct {
	// DID is the issuer DID written to "iss".
	DID string
	// KeyID is the verification method id, either absolute
	// ("did:example:abc#key-1") or a fragment of DID ("#key-1").
	KeyID     string
	Algorithm string
	Curve     string
	Key       crypto.PrivateKey
}

// Verified is the outcome of a successful verification.
type Verified struct {
	Header jws.Header
	// Payload holds the token claims with registered claims reconciled into
	// the credential or presentation.
	Payload            map[string]any
	Issuer             string
	Subject            string
	VerificationMethod model.VerificationMethod
}

// Protocol signs and verifies tokens. It is safe for concurrent use.
type Protocol struct {
	deref       Dereferencer
	algorithms  *algorithm.Registry
	now         func() time.Time
	checkExpiry bool
	leeway      time.Duration
	fillIssuer  bool
	logger      *slog.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithAlgorithms replaces the default algorithm registry.
func WithAlgorithms(r *algorithm.Registry) Option {
	return func(p *Protocol) {
		if r != nil {
			p.algorithms = r
		}
	}
}

// WithClock overrides the time source for iat and nbf/exp checks.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		if now != nil {
			p.now = now
		}
	}
}

// WithExpiryCheck rejects tokens whose exp lies more than leeway in the past.
// Off by default.
func WithExpiryCheck(leeway time.Duration) Option {
	return func(p *Protocol) {
		p.checkExpiry = true
		p.leeway = leeway
	}
}

// WithIssuerFill accepts credentials without an issuer and sets it from iss.
// By default such credentials fail with ClaimMismatch.
func WithIssuerFill() Option {
	return func(p *Protocol) {
		p.fillIssuer = true
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns a Protocol resolving verification keys through deref.
func New(deref Dereferencer, opts ...Option) *Protocol {
	p := &Protocol{
		deref:      deref,
		algorithms: algorithm.Default(),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sign issues a token for payload. Registered claims (iss, sub, iat and,
// when derivable from the credential, nbf, exp and jti) replace any
// caller-supplied claims of the same name. payload is not modified.
func (p *Protocol) Sign(_ context.Context, payload map[string]any, signer Signer) (string, error) {
	const op = "sign token"

	parsed, ok := did.Parse(signer.DID)
	if !ok || !parsed.IsBareDID() {
		return "", failure.New(failure.InvalidDID, op, fmt.Sprintf("signer DID %q is not a bare DID", signer.DID))
	}
	binding, err := p.algorithms.Lookup(signer.Algorithm, signer.Curve)
	if err != nil {
		return "", err
	}

	claims, err := registeredClaims(payload, signer.DID, p.now())
	if err != nil {
		return "", failure.Wrap(failure.Internal, op, "derive registered claims", err)
	}
	kid := absoluteKeyID(signer.DID, signer.KeyID)
	if ref, ok := did.Parse(kid); !ok || !ref.HasFragment() || ref.URI != parsed.URI {
		return "", failure.New(failure.InvalidDIDURL, op, fmt.Sprintf("key id %q is not a verification method of %s", kid, signer.DID))
	}
	header := jws.Header{Alg: binding.Algorithm, Typ: jws.TypeJWT, Kid: kid}
	input, err := jws.Encode(header, claims)
	if err != nil {
		return "", failure.Wrap(failure.Internal, op, "encode token", err)
	}
	sig, err := binding.Sign(signer.Key, []byte(input))
	if err != nil {
		return "", failure.Wrap(failure.Internal, op, "sign input", err)
	}
	return jws.AppendSignature(input, sig), nil
}

// Parse decodes token without verifying it. The result is not authenticated.
func (p *Protocol) Parse(token string) (*jws.Token, error) {
	return jws.Parse(token)
}

// Verify authenticates token and returns its reconciled payload.
func (p *Protocol) Verify(ctx context.Context, token string) (*Verified, error) {
	v, stage, err := p.verify(ctx, token)
	if err != nil {
		kind := failure.KindOf(err)
		verificationsTotal.WithLabelValues(string(kind)).Inc()
		kid := ""
		if tok, perr := jws.Parse(token); perr == nil {
			kid = tok.Header.Kid
		}
		p.logger.Info("token verification failed", "stage", stage, "kind", kind, "kid", kid, "error", err)
		return nil, err
	}
	verificationsTotal.WithLabelValues("success").Inc()
	return v, nil
}

func (p *Protocol) verify(ctx context.Context, token string) (*Verified, Stage, error) {
	const op = "verify token"

	tok, err := jws.Parse(token)
	if err != nil {
		return nil, StageParse, err
	}

	vm, err := p.resolveKey(ctx, tok.Header.Kid)
	if err != nil {
		return nil, StageKey, err
	}

	pub, err := algorithm.FromVerificationMethod(vm)
	if err != nil {
		return nil, StageKey, err
	}
	if !pub.Accepts(tok.Header.Alg) {
		return nil, StageAlgorithm, failure.New(failure.UnsupportedAlgorithm, op,
			fmt.Sprintf("alg %q cannot be used with a %s key", tok.Header.Alg, pub.Algorithm))
	}
	binding, err := p.algorithms.Lookup(tok.Header.Alg, pub.Curve)
	if err != nil {
		return nil, StageAlgorithm, err
	}

	if err := binding.Verify(pub.Key, []byte(tok.SigningInput), tok.Signature); err != nil {
		return nil, StageSignature, failure.Wrap(failure.InvalidSignature, op, "signature does not match", err)
	}

	now := p.now()
	if p.checkExpiry {
		if err := checkNotExpired(tok.Claims, now, p.leeway); err != nil {
			return nil, StageClaims, err
		}
	}
	kidDID, _ := did.Parse(tok.Header.Kid)
	issuer, subject, err := reconcile(tok.Claims, now, kidDID.URI, p.fillIssuer)
	if err != nil {
		return nil, StageClaims, err
	}

	return &Verified{
		Header:             tok.Header,
		Payload:            tok.Claims,
		Issuer:             issuer,
		Subject:            subject,
		VerificationMethod: vm,
	}, "", nil
}

// resolveKey dereferences kid to a verification method with key material.
func (p *Protocol) resolveKey(ctx context.Context, kid string) (model.VerificationMethod, error) {
	const op = "resolve key"

	res, err := p.deref.Dereference(ctx, kid)
	if err != nil {
		return model.VerificationMethod{}, failure.Wrap(failure.KeyResolutionFailed, op, fmt.Sprintf("dereference %q", kid), err)
	}
	if res.Failed() {
		return model.VerificationMethod{}, failure.Wrap(failure.KeyResolutionFailed, op, fmt.Sprintf("dereference %q", kid), res.Err())
	}
	vm, ok := res.Content.(model.VerificationMethod)
	if !ok {
		return model.VerificationMethod{}, failure.New(failure.KeyResolutionFailed, op, fmt.Sprintf("%q addresses a %T, not a verification method", kid, res.Content))
	}
	if !vm.HasKeyMaterial() {
		return model.VerificationMethod{}, failure.New(failure.KeyResolutionFailed, op, fmt.Sprintf("%q has no public key material", kid))
	}
	return vm, nil
}

func absoluteKeyID(didURI, keyID string) string {
	switch {
	case keyID == "":
		return didURI
	case keyID[0] == '#':
		return didURI + keyID
	default:
		return keyID
	}
}
