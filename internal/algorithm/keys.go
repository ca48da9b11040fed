package algorithm

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

// Verification method types with a fixed key encoding.
const (
	TypeMultikey                          = "Multikey"
	TypeJSONWebKey2020                    = "JsonWebKey2020"
	TypeEd25519VerificationKey2018        = "Ed25519VerificationKey2018"
	TypeEd25519VerificationKey2020        = "Ed25519VerificationKey2020"
	TypeEcdsaSecp256k1VerificationKey2019 = "EcdsaSecp256k1VerificationKey2019"
)

// Multicodec varint prefixes for public keys.
var (
	codecEd25519   = []byte{0xed, 0x01}
	codecSecp256k1 = []byte{0xe7, 0x01}
	codecP256      = []byte{0x80, 0x24}
	codecP384      = []byte{0x81, 0x24}
)

// PublicKey is a verification key together with the algorithm and curve it
// is used with.
type PublicKey struct {
	Algorithm string
	Curve     string
	Key       crypto.PublicKey
}

// Accepts reports whether tokens signed with alg may be checked against k.
// Elliptic and Edwards keys fix their algorithm; RSA keys serve RS256 and
// PS256.
func (k PublicKey) Accepts(alg string) bool {
	if _, ok := k.Key.(*rsa.PublicKey); ok {
		return alg == RS256 || alg == PS256
	}
	return alg == k.Algorithm
}

// FromVerificationMethod derives the verification key published by vm.
// Material that cannot be decoded fails with failure.KeyResolutionFailed; a
// key type with no algorithm fails with failure.UnsupportedAlgorithm.
func FromVerificationMethod(vm model.VerificationMethod) (PublicKey, error) {
	switch {
	case vm.PublicKeyJwk != nil:
		return FromJWK(*vm.PublicKeyJwk)
	case vm.PublicKeyMultibase != "":
		_, raw, err := multibase.Decode(vm.PublicKeyMultibase)
		if err != nil {
			return PublicKey{}, failure.Wrap(failure.KeyResolutionFailed, "decode key", "invalid publicKeyMultibase", err)
		}
		if vm.Type == TypeEd25519VerificationKey2020 && len(raw) == ed25519.PublicKeySize {
			return PublicKey{Algorithm: EdDSA, Curve: CurveEd25519, Key: ed25519.PublicKey(raw)}, nil
		}
		return fromMulticodec(raw)
	case vm.PublicKeyBase58 != "":
		raw, err := base58.Decode(vm.PublicKeyBase58)
		if err != nil {
			return PublicKey{}, failure.Wrap(failure.KeyResolutionFailed, "decode key", "invalid publicKeyBase58", err)
		}
		switch vm.Type {
		case TypeEd25519VerificationKey2018, TypeEd25519VerificationKey2020:
			return ed25519Key(raw)
		case TypeEcdsaSecp256k1VerificationKey2019:
			return secp256k1Key(raw)
		default:
			return PublicKey{}, failure.New(failure.UnsupportedAlgorithm, "decode key", fmt.Sprintf("no algorithm for base58 key of type %q", vm.Type))
		}
	default:
		return PublicKey{}, failure.New(failure.KeyResolutionFailed, "decode key", fmt.Sprintf("verification method %q has no key material", vm.ID))
	}
}

// DecodeMultikey decodes a multibase, multicodec-prefixed public key such as
// the method-specific id of a did:key.
func DecodeMultikey(s string) (PublicKey, error) {
	_, raw, err := multibase.Decode(s)
	if err != nil {
		return PublicKey{}, failure.Wrap(failure.KeyResolutionFailed, "decode key", "invalid multibase", err)
	}
	return fromMulticodec(raw)
}

// EncodeMultikey encodes an Ed25519 or secp256k1 public key as a base58btc
// multibase string with its multicodec prefix.
func EncodeMultikey(key crypto.PublicKey) (string, error) {
	var prefixed []byte
	switch k := key.(type) {
	case ed25519.PublicKey:
		prefixed = append(append([]byte{}, codecEd25519...), k...)
	case *secp256k1.PublicKey:
		prefixed = append(append([]byte{}, codecSecp256k1...), k.SerializeCompressed()...)
	default:
		return "", fmt.Errorf("multikey: unsupported key type %T", key)
	}
	return multibase.Encode(multibase.Base58BTC, prefixed)
}

// FromJWK converts a public JWK into a verification key.
func FromJWK(jwk model.JWK) (PublicKey, error) {
	switch jwk.Kty {
	case "OKP":
		if jwk.Crv != CurveEd25519 {
			return PublicKey{}, failure.New(failure.UnsupportedAlgorithm, "decode jwk", fmt.Sprintf("unsupported OKP curve %q", jwk.Crv))
		}
		x, err := decodeMember("x", jwk.X)
		if err != nil {
			return PublicKey{}, err
		}
		return ed25519Key(x)
	case "EC":
		x, err := decodeMember("x", jwk.X)
		if err != nil {
			return PublicKey{}, err
		}
		y, err := decodeMember("y", jwk.Y)
		if err != nil {
			return PublicKey{}, err
		}
		return ecKey(jwk.Crv, x, y)
	case "RSA":
		n, err := decodeMember("n", jwk.N)
		if err != nil {
			return PublicKey{}, err
		}
		e, err := decodeMember("e", jwk.E)
		if err != nil {
			return PublicKey{}, err
		}
		exp := new(big.Int).SetBytes(e)
		if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
			return PublicKey{}, failure.New(failure.KeyResolutionFailed, "decode jwk", "invalid RSA exponent")
		}
		alg := RS256
		if jwk.Alg == PS256 {
			alg = PS256
		}
		return PublicKey{Algorithm: alg, Key: &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}}, nil
	default:
		return PublicKey{}, failure.New(failure.UnsupportedAlgorithm, "decode jwk", fmt.Sprintf("unsupported key type %q", jwk.Kty))
	}
}

// ToJWK renders a public key as a JWK. Only Ed25519, secp256k1 and NIST
// curve keys are supported.
func ToJWK(key crypto.PublicKey) (model.JWK, error) {
	enc := base64.RawURLEncoding
	switch k := key.(type) {
	case ed25519.PublicKey:
		return model.JWK{Kty: "OKP", Crv: CurveEd25519, X: enc.EncodeToString(k)}, nil
	case *secp256k1.PublicKey:
		raw := k.SerializeUncompressed()
		return model.JWK{Kty: "EC", Crv: CurveSecp256k1, X: enc.EncodeToString(raw[1:33]), Y: enc.EncodeToString(raw[33:])}, nil
	case *ecdsa.PublicKey:
		size := (k.Curve.Params().BitSize + 7) / 8
		return model.JWK{
			Kty: "EC",
			Crv: k.Curve.Params().Name,
			X:   enc.EncodeToString(k.X.FillBytes(make([]byte, size))),
			Y:   enc.EncodeToString(k.Y.FillBytes(make([]byte, size))),
		}, nil
	default:
		return model.JWK{}, fmt.Errorf("jwk: unsupported key type %T", key)
	}
}

func fromMulticodec(raw []byte) (PublicKey, error) {
	switch {
	case hasPrefix(raw, codecEd25519):
		return ed25519Key(raw[len(codecEd25519):])
	case hasPrefix(raw, codecSecp256k1):
		return secp256k1Key(raw[len(codecSecp256k1):])
	case hasPrefix(raw, codecP256):
		return compressedNISTKey(CurveP256, raw[len(codecP256):])
	case hasPrefix(raw, codecP384):
		return compressedNISTKey(CurveP384, raw[len(codecP384):])
	default:
		return PublicKey{}, failure.New(failure.UnsupportedAlgorithm, "decode key", "unknown multicodec prefix")
	}
}

func ed25519Key(raw []byte) (PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, failure.New(failure.KeyResolutionFailed, "decode key", fmt.Sprintf("expected %d Ed25519 key bytes, got %d", ed25519.PublicKeySize, len(raw)))
	}
	return PublicKey{Algorithm: EdDSA, Curve: CurveEd25519, Key: ed25519.PublicKey(append([]byte(nil), raw...))}, nil
}

func secp256k1Key(raw []byte) (PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return PublicKey{}, failure.Wrap(failure.KeyResolutionFailed, "decode key", "invalid secp256k1 key", err)
	}
	return PublicKey{Algorithm: ES256K, Curve: CurveSecp256k1, Key: pub}, nil
}

func ecKey(crv string, x, y []byte) (PublicKey, error) {
	if crv == CurveSecp256k1 {
		if len(x) != 32 || len(y) != 32 {
			return PublicKey{}, failure.New(failure.KeyResolutionFailed, "decode jwk", "secp256k1 coordinates must be 32 bytes")
		}
		uncompressed := append(append([]byte{0x04}, x...), y...)
		return secp256k1Key(uncompressed)
	}

	alg, curve, validate, ok := nistCurve(crv)
	if !ok {
		return PublicKey{}, failure.New(failure.UnsupportedAlgorithm, "decode jwk", fmt.Sprintf("unsupported EC curve %q", crv))
	}
	size := (curve.Params().BitSize + 7) / 8
	if len(x) != size || len(y) != size {
		return PublicKey{}, failure.New(failure.KeyResolutionFailed, "decode jwk", fmt.Sprintf("%s coordinates must be %d bytes", crv, size))
	}
	uncompressed := append(append([]byte{0x04}, x...), y...)
	if _, err := validate.NewPublicKey(uncompressed); err != nil {
		return PublicKey{}, failure.Wrap(failure.KeyResolutionFailed, "decode jwk", "point is not on the curve", err)
	}
	return PublicKey{
		Algorithm: alg,
		Curve:     crv,
		Key:       &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)},
	}, nil
}

func compressedNISTKey(crv string, raw []byte) (PublicKey, error) {
	alg, curve, _, _ := nistCurve(crv)
	x, y := elliptic.UnmarshalCompressed(curve, raw)
	if x == nil {
		return PublicKey{}, failure.New(failure.KeyResolutionFailed, "decode key", fmt.Sprintf("invalid compressed %s point", crv))
	}
	return PublicKey{Algorithm: alg, Curve: crv, Key: &ecdsa.PublicKey{Curve: curve, X: x, Y: y}}, nil
}

func nistCurve(crv string) (string, elliptic.Curve, ecdh.Curve, bool) {
	switch crv {
	case CurveP256:
		return ES256, elliptic.P256(), ecdh.P256(), true
	case CurveP384:
		return ES384, elliptic.P384(), ecdh.P384(), true
	case CurveP521:
		return ES512, elliptic.P521(), ecdh.P521(), true
	default:
		return "", nil, nil, false
	}
}

func decodeMember(name, value string) ([]byte, error) {
	if value == "" {
		return nil, failure.New(failure.KeyResolutionFailed, "decode jwk", fmt.Sprintf("missing %q", name))
	}
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, failure.Wrap(failure.KeyResolutionFailed, "decode jwk", fmt.Sprintf("invalid %q", name), err)
	}
	return b, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
