// Package jws encodes and parses compact JWS tokens:
//
//	base64url(header) "." base64url(payload) "." base64url(signature)
//
// Segments use the unpadded base64url alphabet. Parse checks structure and
// header shape only; signatures are checked by the caller.
package jws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
)

// TypeJWT is the only accepted "typ" header value.
const TypeJWT = "JWT"

// Header is the protected header of a compact token.
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// Token is a parsed compact token. Claims are decoded with json.Number for
// numeric values so integers survive unchanged.
type Token struct {
	Header       Header
	Claims       map[string]any
	SigningInput string
	Signature    []byte
	Raw          string
}

var (
	segmentEncoder = new(jwt.Token)
	segmentDecoder = jwt.NewParser(jwt.WithStrictDecoding())
)

// Encode returns the two-segment signing input for header and payload.
func Encode(header Header, payload any) (string, error) {
	h, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return segmentEncoder.EncodeSegment(h) + "." + segmentEncoder.EncodeSegment(p), nil
}

// AppendSignature completes a signing input with its signature segment.
func AppendSignature(signingInput string, sig []byte) string {
	return signingInput + "." + segmentEncoder.EncodeSegment(sig)
}

// Parse splits and decodes token. Structural defects and invalid headers fail
// with failure.MalformedToken.
func Parse(token string) (*Token, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, malformed(fmt.Sprintf("expected 3 segments, got %d", len(parts)), nil)
	}
	for i, part := range parts {
		if part == "" {
			return nil, malformed(fmt.Sprintf("segment %d is empty", i), nil)
		}
	}

	headerBytes, err := segmentDecoder.DecodeSegment(parts[0])
	if err != nil {
		return nil, malformed("header is not base64url", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, malformed("header is not a JSON object", err)
	}
	switch {
	case header.Typ != TypeJWT:
		return nil, malformed(fmt.Sprintf("typ must be %q, got %q", TypeJWT, header.Typ), nil)
	case header.Alg == "":
		return nil, malformed("alg is missing", nil)
	case header.Kid == "":
		return nil, malformed("kid is missing", nil)
	}

	payloadBytes, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return nil, malformed("payload is not base64url", err)
	}
	claims, err := decodeClaims(payloadBytes)
	if err != nil {
		return nil, malformed("payload is not a JSON object", err)
	}

	sig, err := segmentDecoder.DecodeSegment(parts[2])
	if err != nil {
		return nil, malformed("signature is not base64url", err)
	}

	return &Token{
		Header:       header,
		Claims:       claims,
		SigningInput: parts[0] + "." + parts[1],
		Signature:    sig,
		Raw:          token,
	}, nil
}

func decodeClaims(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil {
		return nil, err
	}
	if claims == nil {
		return nil, fmt.Errorf("payload is null")
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after payload")
	}
	return claims, nil
}

func malformed(reason string, cause error) error {
	return failure.Wrap(failure.MalformedToken, "parse token", reason, cause)
}
