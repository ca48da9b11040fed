// Package algorithm binds JOSE algorithm identifiers to signing and
// verification primitives, and derives verification keys from DID document
// key material.
//
// Bindings are keyed by "alg:curve". A binding may also be registered under an
// empty curve so callers that know only the algorithm still find it. A lookup
// miss is reported as failure.UnsupportedAlgorithm; the registry never falls
// back to a different algorithm.
package algorithm

import (
	"crypto"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
)

// JOSE algorithm identifiers.
const (
	EdDSA  = "EdDSA"
	ES256  = "ES256"
	ES256K = "ES256K"
	ES384  = "ES384"
	ES512  = "ES512"
	RS256  = "RS256"
	PS256  = "PS256"
)

// Curve identifiers as they appear in JWK "crv".
const (
	CurveEd25519   = "Ed25519"
	CurveP256      = "P-256"
	CurveP384      = "P-384"
	CurveP521      = "P-521"
	CurveSecp256k1 = "secp256k1"
)

// SignFunc signs msg with a private key of the binding's key type.
type SignFunc func(key crypto.PrivateKey, msg []byte) ([]byte, error)

// VerifyFunc checks sig over msg; a nil error means the signature is valid.
type VerifyFunc func(key crypto.PublicKey, msg, sig []byte) error

// Binding pairs a canonical algorithm/curve with its primitives.
type Binding struct {
	Algorithm string
	Curve     string
	Sign      SignFunc
	Verify    VerifyFunc
}

// Registry maps "alg:curve" keys to bindings. Register during start-up only;
// afterwards the registry is read-only and safe for concurrent lookups.
type Registry struct {
	bindings map[string]Binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// Default returns a registry with every supported algorithm registered.
func Default() *Registry {
	r := NewRegistry()
	r.registerJWT(EdDSA, CurveEd25519, jwt.SigningMethodEdDSA, true)
	r.registerJWT(ES256, CurveP256, jwt.SigningMethodES256, true)
	r.registerJWT(ES384, CurveP384, jwt.SigningMethodES384, true)
	r.registerJWT(ES512, CurveP521, jwt.SigningMethodES512, true)
	r.registerJWT(RS256, "", jwt.SigningMethodRS256, false)
	r.registerJWT(PS256, "", jwt.SigningMethodPS256, false)

	es256k := Binding{Algorithm: ES256K, Curve: CurveSecp256k1, Sign: signES256K, Verify: verifyES256K}
	r.Register(ES256K, CurveSecp256k1, es256k)
	r.Register(ES256K, "", es256k)
	return r
}

// Register stores b under alg and curve. An existing binding for the same key
// is replaced.
func (r *Registry) Register(alg, curve string, b Binding) {
	r.bindings[key(alg, curve)] = b
}

// Lookup returns the binding registered for alg and curve.
func (r *Registry) Lookup(alg, curve string) (Binding, error) {
	b, ok := r.bindings[key(alg, curve)]
	if !ok {
		return Binding{}, failure.New(failure.UnsupportedAlgorithm, "algorithm lookup", fmt.Sprintf("no binding for %q", key(alg, curve)))
	}
	return b, nil
}

func (r *Registry) registerJWT(alg, curve string, method jwt.SigningMethod, wildcard bool) {
	b := Binding{
		Algorithm: alg,
		Curve:     curve,
		Sign: func(key crypto.PrivateKey, msg []byte) ([]byte, error) {
			return method.Sign(string(msg), key)
		},
		Verify: func(key crypto.PublicKey, msg, sig []byte) error {
			return method.Verify(string(msg), sig, key)
		},
	}
	r.Register(alg, curve, b)
	if wildcard && curve != "" {
		r.Register(alg, "", b)
	}
}

func key(alg, curve string) string {
	return alg + ":" + curve
}
