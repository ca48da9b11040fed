package algorithm

import (
	"crypto"
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

// ES256K signatures are the 64-byte r||s concatenation over SHA-256.
const es256kSignatureSize = 64

func signES256K(key crypto.PrivateKey, msg []byte) ([]byte, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	digest := sha256.Sum256(msg)
	sig := ecdsa.Sign(priv, digest[:])

	r, s := sig.R(), sig.S()
	rb, sb := r.Bytes(), s.Bytes()
	out := make([]byte, 0, es256kSignatureSize)
	out = append(out, rb[:]...)
	return append(out, sb[:]...), nil
}

func verifyES256K(key crypto.PublicKey, msg, sig []byte) error {
	pub, ok := key.(*secp256k1.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(sig) != es256kSignatureSize {
		return jwt.ErrSignatureInvalid
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return jwt.ErrSignatureInvalid
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() {
		return jwt.ErrSignatureInvalid
	}
	digest := sha256.Sum256(msg)
	if !ecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
