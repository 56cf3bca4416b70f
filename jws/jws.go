// Package jws implements signature verification for the JWS algorithms
// supported by this module: RSASSA-PKCS1-v1_5, RSASSA-PSS, ECDSA with JOSE
// raw r‖s signatures, and EdDSA over Ed25519 and Ed448.
package jws

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"math/big"

	"github.com/cloudflare/circl/sign/ed448"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

// Algorithm is a JWS signature algorithm identifier.
type Algorithm string

const (
	RS256 = Algorithm("RS256") // RSASSA-PKCS1-v1_5 using SHA-256
	RS384 = Algorithm("RS384") // RSASSA-PKCS1-v1_5 using SHA-384
	RS512 = Algorithm("RS512") // RSASSA-PKCS1-v1_5 using SHA-512
	PS256 = Algorithm("PS256") // RSASSA-PSS using SHA-256 and MGF1-SHA-256
	PS384 = Algorithm("PS384") // RSASSA-PSS using SHA-384 and MGF1-SHA-384
	PS512 = Algorithm("PS512") // RSASSA-PSS using SHA-512 and MGF1-SHA-512
	ES256 = Algorithm("ES256") // ECDSA using P-256 and SHA-256
	ES384 = Algorithm("ES384") // ECDSA using P-384 and SHA-384
	ES512 = Algorithm("ES512") // ECDSA using P-521 and SHA-512
	EdDSA = Algorithm("EdDSA") // Ed25519 or Ed448
)

var supported = map[Algorithm]bool{
	RS256: true, RS384: true, RS512: true,
	PS256: true, PS384: true, PS512: true,
	ES256: true, ES384: true, ES512: true,
	EdDSA: true,
}

// Valid reports whether a is a supported algorithm. Unknown algorithms
// fail closed everywhere in this module.
func (a Algorithm) Valid() bool {
	return supported[a]
}

// Hash returns the digest used by a, or 0 for EdDSA (the digest is
// intrinsic to the scheme).
func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case RS256, PS256, ES256:
		return crypto.SHA256
	case RS384, PS384, ES384:
		return crypto.SHA384
	case RS512, PS512, ES512:
		return crypto.SHA512
	}
	return 0
}

// Curve returns the elliptic curve required by an ES* algorithm, or nil.
// ES512 pairs with P-521.
func (a Algorithm) Curve() elliptic.Curve {
	switch a {
	case ES256:
		return elliptic.P256()
	case ES384:
		return elliptic.P384()
	case ES512:
		return elliptic.P521()
	}
	return nil
}

// CompatibleWith reports whether a can be used with a key of the given JWK
// key type and curve.
func (a Algorithm) CompatibleWith(kty, crv string) bool {
	switch a {
	case RS256, RS384, RS512, PS256, PS384, PS512:
		return kty == "RSA"
	case ES256:
		return kty == "EC" && crv == "P-256"
	case ES384:
		return kty == "EC" && crv == "P-384"
	case ES512:
		return kty == "EC" && crv == "P-521"
	case EdDSA:
		return kty == "OKP" && (crv == "Ed25519" || crv == "Ed448")
	}
	return false
}

// Verify checks the detached signature over signingInput.
//
// A structurally well-formed signature that simply does not match returns
// (false, nil). A malformed signature (e.g. an r‖s blob of the wrong width)
// fails with InvalidSignature. A key of the wrong type for the algorithm
// fails with JwtInvalidSignatureAlgorithm.
func Verify(alg Algorithm, key crypto.PublicKey, signingInput, signature []byte) (bool, error) {
	switch alg {
	case RS256, RS384, RS512:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return false, jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "%s requires an RSA key, got %T", alg, key)
		}
		sum := digest(alg.Hash(), signingInput)
		if err := rsa.VerifyPKCS1v15(pub, alg.Hash(), sum, signature); err != nil {
			return false, nil
		}
		return true, nil

	case PS256, PS384, PS512:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return false, jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "%s requires an RSA key, got %T", alg, key)
		}
		sum := digest(alg.Hash(), signingInput)
		// JOSE fixes the salt length to the digest length.
		opts := &rsa.PSSOptions{SaltLength: alg.Hash().Size(), Hash: alg.Hash()}
		if err := rsa.VerifyPSS(pub, alg.Hash(), sum, signature, opts); err != nil {
			return false, nil
		}
		return true, nil

	case ES256, ES384, ES512:
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return false, jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "%s requires an EC key, got %T", alg, key)
		}
		if pub.Curve != alg.Curve() {
			return false, jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "%s requires curve %s, key is on %s",
				alg, alg.Curve().Params().Name, pub.Curve.Params().Name)
		}
		r, s, err := splitRawSignature(signature, pub.Curve)
		if err != nil {
			return false, err
		}
		return ecdsa.Verify(pub, digest(alg.Hash(), signingInput), r, s), nil

	case EdDSA:
		switch pub := key.(type) {
		case ed25519.PublicKey:
			if len(signature) != ed25519.SignatureSize {
				return false, jwterror.Newf(jwterror.KindInvalidSignature, "Ed25519 signature is %d bytes, expected %d",
					len(signature), ed25519.SignatureSize)
			}
			return ed25519.Verify(pub, signingInput, signature), nil
		case ed448.PublicKey:
			if len(signature) != ed448.SignatureSize {
				return false, jwterror.Newf(jwterror.KindInvalidSignature, "Ed448 signature is %d bytes, expected %d",
					len(signature), ed448.SignatureSize)
			}
			return ed448.Verify(pub, signingInput, signature, ""), nil
		default:
			return false, jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "EdDSA requires an Ed25519 or Ed448 key, got %T", key)
		}
	}

	return false, jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "unsupported algorithm %q", alg)
}

// splitRawSignature splits a JOSE r‖s signature into its halves. Both are
// fixed-width big-endian integers padded to the curve byte length.
func splitRawSignature(sig []byte, curve elliptic.Curve) (r, s *big.Int, err error) {
	size := (curve.Params().BitSize + 7) / 8
	if len(sig) != 2*size {
		return nil, nil, jwterror.Newf(jwterror.KindInvalidSignature, "raw signature is %d bytes, expected %d for %s",
			len(sig), 2*size, curve.Params().Name)
	}
	r = new(big.Int).SetBytes(sig[:size])
	s = new(big.Int).SetBytes(sig[size:])
	return r, s, nil
}

func digest(h crypto.Hash, data []byte) []byte {
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}
