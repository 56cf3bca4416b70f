// Package jwk models JSON Web Keys and Key Sets (RFC 7517) and converts
// validated keys into native Go public keys.
//
// Raw JSON is validated at the boundary into one of three closed shapes
// (RSA, EC, OKP); nothing downstream ever branches on unvalidated JSON.
package jwk

import (
	"encoding/json"

	"github.com/oidckit/go-jwt-verify/jws"
	"github.com/oidckit/go-jwt-verify/jwterror"
)

// Key is a single JSON Web Key. Only the fields relevant to signature
// verification are modeled; private-key fields are never read.
type Key struct {
	Kty    string   `json:"kty"`
	Kid    string   `json:"kid,omitempty"`
	Alg    string   `json:"alg,omitempty"`
	Use    string   `json:"use,omitempty"`
	KeyOps []string `json:"key_ops,omitempty"`
	Crv    string   `json:"crv,omitempty"`

	// RSA material, base64url big-endian.
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC point coordinates, or the raw OKP public key in X.
	X string `json:"x,omitempty"`
	Y string `json:"y,omitempty"`
}

// Set is a JSON Web Key Set.
type Set struct {
	Keys []*Key `json:"keys"`
}

// ParseSet parses and validates a JWKS document. The document must be a
// JSON object with a "keys" array; each member must satisfy Validate.
func ParseSet(b []byte) (*Set, error) {
	var probe struct {
		Keys *json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwksValidation, "JWKS is not valid JSON", err)
	}
	if probe.Keys == nil {
		return nil, jwterror.New(jwterror.KindJwksValidation, `JWKS is missing the "keys" array`)
	}

	var set Set
	if err := json.Unmarshal(b, &set); err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwksValidation, `JWKS "keys" is not an array of objects`, err)
	}
	for _, k := range set.Keys {
		if err := k.Validate(); err != nil {
			return nil, err
		}
	}
	return &set, nil
}

// LookupKid returns all keys whose kid equals the given value. kid is not
// required to be unique within a set.
func (s *Set) LookupKid(kid string) []*Key {
	var out []*Key
	for _, k := range s.Keys {
		if k.Kid == kid {
			out = append(out, k)
		}
	}
	return out
}

// Validate enforces the key invariants: a known kty, signature use, key
// material appropriate for the type, and an alg consistent with kty/crv
// when one is declared.
func (k *Key) Validate() error {
	if k.Use != "" && k.Use != "sig" {
		return jwterror.Newf(jwterror.KindJwkInvalid, "key use %q is not sig", k.Use)
	}

	switch k.Kty {
	case "RSA":
		if k.N == "" || k.E == "" {
			return jwterror.New(jwterror.KindJwkInvalid, "RSA key is missing n or e")
		}
	case "EC":
		switch k.Crv {
		case "P-256", "P-384", "P-521":
		default:
			return jwterror.Newf(jwterror.KindJwkInvalid, "unsupported EC curve %q", k.Crv)
		}
		if k.X == "" || k.Y == "" {
			return jwterror.New(jwterror.KindJwkInvalid, "EC key is missing x or y")
		}
	case "OKP":
		switch k.Crv {
		case "Ed25519", "Ed448":
		default:
			return jwterror.Newf(jwterror.KindJwkInvalid, "unsupported OKP curve %q", k.Crv)
		}
		if k.X == "" {
			return jwterror.New(jwterror.KindJwkInvalid, "OKP key is missing x")
		}
	default:
		return jwterror.Newf(jwterror.KindJwkInvalid, "unsupported key type %q", k.Kty)
	}

	if k.Alg != "" && !jws.Algorithm(k.Alg).CompatibleWith(k.Kty, k.Crv) {
		return jwterror.Newf(jwterror.KindJwkInvalid, "alg %q is incompatible with kty %q crv %q", k.Alg, k.Kty, k.Crv)
	}
	return nil
}

// EffectiveAlgorithm resolves the algorithm to verify with: the key's own
// alg wins, then the JWT header's alg. The result must be a supported
// algorithm compatible with the key.
func (k *Key) EffectiveAlgorithm(headerAlg string) (jws.Algorithm, error) {
	alg := k.Alg
	if alg == "" {
		alg = headerAlg
	}
	if alg == "" {
		return "", jwterror.New(jwterror.KindInvalidSignatureAlgorithm, "neither the key nor the token declares an algorithm")
	}
	a := jws.Algorithm(alg)
	if !a.Valid() {
		return "", jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "unsupported algorithm %q", alg)
	}
	if !a.CompatibleWith(k.Kty, k.Crv) {
		return "", jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "algorithm %q is incompatible with kty %q crv %q", alg, k.Kty, k.Crv)
	}
	return a, nil
}
