package jwk

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"

	"github.com/cloudflare/circl/sign/ed448"

	"github.com/oidckit/go-jwt-verify/internal/compact"
	"github.com/oidckit/go-jwt-verify/jwterror"
)

// ParsePKIXPublicKey parses a DER-encoded SubjectPublicKeyInfo structure
// into a native public key, for callers that hold issuer keys in SPKI form
// rather than JWK.
func ParsePKIXPublicKey(der []byte) (crypto.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwkInvalid, "invalid SPKI public key", err)
	}
	return pub, nil
}

// ParsePEMPublicKey parses a PEM-wrapped SPKI public key.
func ParsePEMPublicKey(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, jwterror.New(jwterror.KindJwkInvalid, "no PEM block found")
	}
	return ParsePKIXPublicKey(block.Bytes)
}

// FromPublicKey builds a JWK from a native public key, for publishing a
// JWKS or constructing fixtures. The alg is recorded on the key so tokens
// without a header kid can still be matched by algorithm-aware callers.
func FromPublicKey(kid, alg string, pub crypto.PublicKey) (*Key, error) {
	switch pk := pub.(type) {
	case *rsa.PublicKey:
		return &Key{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: alg,
			N:   compact.EncodeSegment(pk.N.Bytes()),
			E:   compact.EncodeSegment(big.NewInt(int64(pk.E)).Bytes()),
		}, nil
	case *ecdsa.PublicKey:
		var crv string
		switch pk.Curve {
		case elliptic.P256():
			crv = "P-256"
		case elliptic.P384():
			crv = "P-384"
		case elliptic.P521():
			crv = "P-521"
		default:
			return nil, jwterror.Newf(jwterror.KindJwkInvalid, "unsupported elliptic curve %s", pk.Curve.Params().Name)
		}
		size := (pk.Curve.Params().BitSize + 7) / 8
		return &Key{
			Kty: "EC",
			Kid: kid,
			Use: "sig",
			Alg: alg,
			Crv: crv,
			X:   compact.EncodeSegment(pk.X.FillBytes(make([]byte, size))),
			Y:   compact.EncodeSegment(pk.Y.FillBytes(make([]byte, size))),
		}, nil
	case ed25519.PublicKey:
		return &Key{
			Kty: "OKP",
			Kid: kid,
			Use: "sig",
			Alg: "EdDSA",
			Crv: "Ed25519",
			X:   compact.EncodeSegment(pk),
		}, nil
	case ed448.PublicKey:
		return &Key{
			Kty: "OKP",
			Kid: kid,
			Use: "sig",
			Alg: "EdDSA",
			Crv: "Ed448",
			X:   compact.EncodeSegment(pk),
		}, nil
	}
	return nil, jwterror.Newf(jwterror.KindJwkInvalid, "unsupported public key type %T", pub)
}
