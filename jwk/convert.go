package jwk

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"math/big"

	"github.com/cloudflare/circl/sign/ed448"

	"github.com/oidckit/go-jwt-verify/internal/compact"
	"github.com/oidckit/go-jwt-verify/jwterror"
)

// PublicKey converts a validated JWK into the native Go public key object
// used by the signature engine: *rsa.PublicKey, *ecdsa.PublicKey,
// ed25519.PublicKey, or ed448.PublicKey.
func (k *Key) PublicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaPublicKey()
	case "EC":
		return k.ecdsaPublicKey()
	case "OKP":
		return k.okpPublicKey()
	}
	return nil, jwterror.Newf(jwterror.KindJwkInvalid, "unsupported key type %q", k.Kty)
}

func (k *Key) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := compact.DecodeSegment(k.N)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwkInvalid, "RSA modulus is not base64url", err)
	}
	eBytes, err := compact.DecodeSegment(k.E)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwkInvalid, "RSA exponent is not base64url", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	if n.Sign() == 0 {
		return nil, jwterror.New(jwterror.KindJwkInvalid, "RSA modulus is zero")
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 3 {
		return nil, jwterror.New(jwterror.KindJwkInvalid, "RSA exponent out of range")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func (k *Key) ecdsaPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, jwterror.Newf(jwterror.KindJwkInvalid, "unsupported EC curve %q", k.Crv)
	}
	xBytes, err := compact.DecodeSegment(k.X)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwkInvalid, "EC x coordinate is not base64url", err)
	}
	yBytes, err := compact.DecodeSegment(k.Y)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwkInvalid, "EC y coordinate is not base64url", err)
	}
	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, jwterror.Newf(jwterror.KindJwkInvalid, "point is not on curve %s", k.Crv)
	}
	return pub, nil
}

func (k *Key) okpPublicKey() (crypto.PublicKey, error) {
	xBytes, err := compact.DecodeSegment(k.X)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindJwkInvalid, "OKP x is not base64url", err)
	}
	switch k.Crv {
	case "Ed25519":
		if len(xBytes) != ed25519.PublicKeySize {
			return nil, jwterror.Newf(jwterror.KindJwkInvalid, "Ed25519 key is %d bytes, expected %d", len(xBytes), ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(xBytes), nil
	case "Ed448":
		if len(xBytes) != ed448.PublicKeySize {
			return nil, jwterror.Newf(jwterror.KindJwkInvalid, "Ed448 key is %d bytes, expected %d", len(xBytes), ed448.PublicKeySize)
		}
		return ed448.PublicKey(xBytes), nil
	}
	return nil, jwterror.Newf(jwterror.KindJwkInvalid, "unsupported OKP curve %q", k.Crv)
}
