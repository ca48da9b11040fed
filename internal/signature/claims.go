package signature

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"time"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
)

// Registered claim names.
const (
	ClaimIssuer    = "iss"
	ClaimSubject   = "sub"
	ClaimIssuedAt  = "iat"
	ClaimNotBefore = "nbf"
	ClaimExpiry    = "exp"
	ClaimID        = "jti"
)

// Claims carrying the credential or presentation.
const (
	ClaimCredential   = "vc"
	ClaimPresentation = "vp"
)

// Credential and presentation fields touched by reconciliation. The first
// name of each pair is the VCDM 1.1 field, the second its VCDM 2.0 spelling.
var (
	issuanceFields   = []string{"issuanceDate", "validFrom"}
	expirationFields = []string{"expirationDate", "validUntil"}
)

const reconcileOp = "reconcile claims"

// NumericDate claims outside year 0001 through year 9999 are rejected.
const (
	minNumericDate int64 = -62135596800
	maxNumericDate int64 = 253402300799
)

// registeredClaims copies payload and sets the registered claims derived from
// the signer and the embedded credential or presentation.
func registeredClaims(payload map[string]any, issuer string, now time.Time) (map[string]any, error) {
	claims := make(map[string]any, len(payload)+6)
	maps.Copy(claims, payload)

	claims[ClaimIssuer] = issuer
	claims[ClaimIssuedAt] = now.Unix()
	if subject, ok := subjectRecord(payload); ok {
		if id, ok := subject["id"].(string); ok && id != "" {
			claims[ClaimSubject] = id
		}
	}

	if vc, ok := asRecord(payload[ClaimCredential]); ok {
		if _, t, ok, err := timestampField(vc, issuanceFields); err != nil {
			return nil, err
		} else if ok {
			claims[ClaimNotBefore] = t.Unix()
		}
		if _, t, ok, err := timestampField(vc, expirationFields); err != nil {
			return nil, err
		} else if ok {
			claims[ClaimExpiry] = t.Unix()
		}
		if id, ok := vc["id"].(string); ok && id != "" {
			claims[ClaimID] = id
		}
	} else if vp, ok := asRecord(payload[ClaimPresentation]); ok {
		if id, ok := vp["id"].(string); ok && id != "" {
			claims[ClaimID] = id
		}
	}
	return claims, nil
}

// reconcile folds verified registered claims into the credential or
// presentation carried by claims, in place. keyDID is the DID of the
// verification method that signed the token. A credential without an issuer
// is a mismatch unless fillIssuer is set, in which case iss is written to it.
func reconcile(claims map[string]any, now time.Time, keyDID string, fillIssuer bool) (issuer, subject string, err error) {
	vc, isVC := asRecord(claims[ClaimCredential])
	vp, isVP := asRecord(claims[ClaimPresentation])

	exp, hasExp, err := numericClaim(claims, ClaimExpiry)
	if err != nil {
		return "", "", err
	}
	if hasExp && isVC {
		if err := alignTimestamp(vc, expirationFields, ClaimExpiry, exp); err != nil {
			return "", "", err
		}
	}

	nbf, hasNbf, err := numericClaim(claims, ClaimNotBefore)
	if err != nil {
		return "", "", err
	}
	if hasNbf {
		if now.Unix() < nbf {
			return "", "", failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("nbf %d is in the future", nbf))
		}
		if isVC {
			if err := alignTimestamp(vc, issuanceFields, ClaimNotBefore, nbf); err != nil {
				return "", "", err
			}
		}
	}

	if sub, ok := claims[ClaimSubject].(string); ok && sub != "" {
		if record, ok := subjectRecord(claims); ok {
			record["id"] = sub
		}
		subject = sub
	} else if record, ok := subjectRecord(claims); ok {
		subject, _ = record["id"].(string)
	}

	if jti, ok := claims[ClaimID].(string); ok && jti != "" {
		switch {
		case isVC:
			vc["id"] = jti
		case isVP:
			vp["id"] = jti
		}
	}

	issuer, _ = claims[ClaimIssuer].(string)
	switch {
	case isVC:
		if issuer == "" {
			return "", "", failure.New(failure.ClaimMismatch, reconcileOp, "credential token has no iss")
		}
		switch current := issuerID(vc["issuer"]); current {
		case issuer:
		case "":
			if !fillIssuer {
				return "", "", failure.New(failure.ClaimMismatch, reconcileOp, "credential has no issuer")
			}
			vc["issuer"] = issuer
		default:
			return "", "", failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("iss %q does not match credential issuer %q", issuer, current))
		}
	case isVP && issuer != "":
		switch holder, _ := vp["holder"].(string); holder {
		case "":
			vp["holder"] = issuer
		case issuer:
		default:
			return "", "", failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("iss %q does not match presentation holder %q", issuer, holder))
		}
	}
	if issuer != "" && keyDID != "" && issuer != keyDID {
		return "", "", failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("iss %q is not the DID of the signing key %q", issuer, keyDID))
	}
	return issuer, subject, nil
}

// checkNotExpired fails when exp lies more than leeway before now.
func checkNotExpired(claims map[string]any, now time.Time, leeway time.Duration) error {
	exp, ok, err := numericClaim(claims, ClaimExpiry)
	if err != nil || !ok {
		return err
	}
	if now.Sub(time.Unix(exp, 0)) > leeway {
		return failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("token expired at %s", formatTimestamp(exp)))
	}
	return nil
}

// alignTimestamp checks that the record's timestamp field, when present,
// floors to want, then overwrites it with the canonical form of want.
func alignTimestamp(record map[string]any, fields []string, claim string, want int64) error {
	name, t, ok, err := timestampField(record, fields)
	if err != nil {
		return failure.Wrap(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("%s is not a timestamp", name), err)
	}
	if ok && t.Unix() != want {
		return failure.New(failure.ClaimMismatch, reconcileOp,
			fmt.Sprintf("%s %d does not match %s %q", claim, want, name, record[name]))
	}
	if !ok {
		name = fields[0]
	}
	record[name] = formatTimestamp(want)
	return nil
}

// timestampField returns the first of fields present in record, parsed as
// RFC 3339.
func timestampField(record map[string]any, fields []string) (string, time.Time, bool, error) {
	for _, name := range fields {
		raw, present := record[name]
		if !present || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return name, time.Time{}, false, fmt.Errorf("%s must be a string, got %T", name, raw)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return name, time.Time{}, false, fmt.Errorf("%s: %w", name, err)
		}
		return name, t, true, nil
	}
	return "", time.Time{}, false, nil
}

func formatTimestamp(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// numericClaim reads a NumericDate claim, flooring fractional seconds.
func numericClaim(claims map[string]any, name string) (int64, bool, error) {
	raw, present := claims[name]
	if !present || raw == nil {
		return 0, false, nil
	}
	var f float64
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return boundedDate(name, i)
		}
		parsed, err := v.Float64()
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false, failure.Wrap(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("%s is not numeric", name), err)
		}
		f = parsed
	case float64:
		f = v
	case int64:
		return boundedDate(name, v)
	case int:
		return boundedDate(name, int64(v))
	default:
		return 0, false, failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("%s is not numeric", name))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("%s is not finite", name))
	}
	// Range check before the conversion; int64 of an oversized float is undefined.
	if f < float64(minNumericDate) || f >= float64(maxNumericDate+1) {
		return 0, false, outOfRange(name)
	}
	return int64(math.Floor(f)), true, nil
}

func boundedDate(name string, sec int64) (int64, bool, error) {
	if sec < minNumericDate || sec > maxNumericDate {
		return 0, false, outOfRange(name)
	}
	return sec, true, nil
}

func outOfRange(name string) error {
	return failure.New(failure.ClaimMismatch, reconcileOp, fmt.Sprintf("%s is outside the supported date range", name))
}

// subjectRecord returns the credential subject when it is a single object.
// The subject is looked up in the embedded credential first and at the top
// level second.
func subjectRecord(claims map[string]any) (map[string]any, bool) {
	if vc, ok := asRecord(claims[ClaimCredential]); ok {
		if subject, present := vc["credentialSubject"]; present {
			return asRecord(subject)
		}
	}
	return asRecord(claims["credentialSubject"])
}

// issuerID extracts the issuer id from its string or {"id": ...} form.
func issuerID(v any) string {
	switch issuer := v.(type) {
	case string:
		return issuer
	case map[string]any:
		id, _ := issuer["id"].(string)
		return id
	default:
		return ""
	}
}

func asRecord(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
