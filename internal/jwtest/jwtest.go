// Package jwtest builds signed tokens and key sets for tests. It signs
// with the standard library (and circl for Ed448) rather than the code
// under test, so signature verification is exercised against an
// independent producer.
package jwtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"

	"github.com/oidckit/go-jwt-verify/internal/compact"
	"github.com/oidckit/go-jwt-verify/jwk"
)

// Signer signs tokens under one key pair.
type Signer struct {
	Alg string
	Kid string

	rsaKey     *rsa.PrivateKey
	ecdsaKey   *ecdsa.PrivateKey
	ed25519Key ed25519.PrivateKey
	ed448Key   ed448.PrivateKey
}

// NewSigner generates a fresh key pair for the algorithm.
func NewSigner(alg, kid string) (*Signer, error) {
	s := &Signer{Alg: alg, Kid: kid}
	var err error
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
		s.rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
	case "ES256":
		s.ecdsaKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		s.ecdsaKey, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		s.ecdsaKey, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case "EdDSA":
		_, s.ed25519Key, err = ed25519.GenerateKey(rand.Reader)
	case "EdDSA-Ed448":
		s.Alg = "EdDSA"
		_, s.ed448Key, err = ed448.GenerateKey(rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PublicKey returns the native public key.
func (s *Signer) PublicKey() crypto.PublicKey {
	switch {
	case s.rsaKey != nil:
		return &s.rsaKey.PublicKey
	case s.ecdsaKey != nil:
		return &s.ecdsaKey.PublicKey
	case s.ed25519Key != nil:
		return s.ed25519Key.Public().(ed25519.PublicKey)
	case s.ed448Key != nil:
		return s.ed448Key.Public().(ed448.PublicKey)
	}
	return nil
}

// JWK returns the public key as a JWK carrying the signer's kid and alg.
func (s *Signer) JWK() (*jwk.Key, error) {
	return jwk.FromPublicKey(s.Kid, s.Alg, s.PublicKey())
}

// Sign builds a compact JWT over the given payload. The header carries
// the signer's alg and kid; extraHeader entries override it.
func (s *Signer) Sign(payload map[string]any, extraHeader map[string]any) (string, error) {
	header := map[string]any{"alg": s.Alg}
	if s.Kid != "" {
		header["kid"] = s.Kid
	}
	for k, v := range extraHeader {
		header[k] = v
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	signingInput := compact.EncodeSegment(headerJSON) + "." + compact.EncodeSegment(payloadJSON)

	sig, err := s.sign([]byte(signingInput))
	if err != nil {
		return "", err
	}
	return signingInput + "." + compact.EncodeSegment(sig), nil
}

func (s *Signer) sign(input []byte) ([]byte, error) {
	switch s.Alg {
	case "RS256", "RS384", "RS512":
		h := hashFor(s.Alg)
		return rsa.SignPKCS1v15(rand.Reader, s.rsaKey, h, digest(h, input))
	case "PS256", "PS384", "PS512":
		h := hashFor(s.Alg)
		opts := &rsa.PSSOptions{SaltLength: h.Size(), Hash: h}
		return rsa.SignPSS(rand.Reader, s.rsaKey, h, digest(h, input), opts)
	case "ES256", "ES384", "ES512":
		h := hashFor(s.Alg)
		r, sv, err := ecdsa.Sign(rand.Reader, s.ecdsaKey, digest(h, input))
		if err != nil {
			return nil, err
		}
		size := (s.ecdsaKey.Curve.Params().BitSize + 7) / 8
		sig := make([]byte, 2*size)
		r.FillBytes(sig[:size])
		sv.FillBytes(sig[size:])
		return sig, nil
	case "EdDSA":
		if s.ed25519Key != nil {
			return ed25519.Sign(s.ed25519Key, input), nil
		}
		return ed448.Sign(s.ed448Key, input, ""), nil
	}
	return nil, fmt.Errorf("unsupported algorithm %q", s.Alg)
}

func hashFor(alg string) crypto.Hash {
	switch alg[2:] {
	case "256":
		return crypto.SHA256
	case "384":
		return crypto.SHA384
	default:
		return crypto.SHA512
	}
}

func digest(h crypto.Hash, data []byte) []byte {
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}

// JWKSJSON serializes keys into a JWKS document.
func JWKSJSON(keys ...*jwk.Key) []byte {
	b, err := json.Marshal(map[string]any{"keys": keys})
	if err != nil {
		panic(err)
	}
	return b
}
