// Package compact implements the low-level codec for compact-serialized
// JWTs: base64url segments, the three-way split, and JSON object parsing.
package compact

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

// Token holds the three raw segments of a compact JWT plus the exact bytes
// the signature was computed over.
type Token struct {
	HeaderB64    string
	PayloadB64   string
	SignatureB64 string

	// SigningInput is the ASCII bytes of "headerB64.payloadB64".
	SigningInput []byte
}

// DecodeSegment decodes a base64url segment. The base64url alphabet is
// accepted with up to two trailing '=' padding characters; anything else is
// rejected. An input whose unpadded length mod 4 equals 1 can never be valid
// base64 and is rejected outright.
func DecodeSegment(s string) ([]byte, error) {
	trimmed := strings.TrimRight(s, "=")
	if len(s)-len(trimmed) > 2 {
		return nil, jwterror.New(jwterror.KindInvalidJwt, "invalid base64url padding")
	}
	if len(trimmed)%4 == 1 {
		return nil, jwterror.New(jwterror.KindInvalidJwt, "invalid base64url length")
	}
	b, err := base64.RawURLEncoding.Strict().DecodeString(trimmed)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindInvalidJwt, "invalid base64url", err)
	}
	return b, nil
}

// EncodeSegment encodes bytes as an unpadded base64url segment.
func EncodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Split splits a compact JWT into its three segments. All three must be
// non-empty. The signing input is taken verbatim from the token string, so
// reassembling HeaderB64 + "." + PayloadB64 + "." + SignatureB64 yields the
// original token.
func Split(token string) (*Token, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, jwterror.Newf(jwterror.KindInvalidJwt, "token has %d segments, expected 3", len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return nil, jwterror.New(jwterror.KindInvalidJwt, "token has an empty segment")
		}
	}
	return &Token{
		HeaderB64:    parts[0],
		PayloadB64:   parts[1],
		SignatureB64: parts[2],
		SigningInput: []byte(parts[0] + "." + parts[1]),
	}, nil
}

// ParseJSONObject parses UTF-8 JSON bytes that must form a single object.
// Numbers are preserved as json.Number so integer claims survive intact.
func ParseJSONObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, jwterror.Wrap(jwterror.KindInvalidJwt, "segment is not valid JSON", err)
	}
	if m == nil {
		return nil, jwterror.New(jwterror.KindInvalidJwt, "segment is not a JSON object")
	}
	// Reject trailing garbage after the object.
	if _, err := dec.Token(); err != io.EOF {
		return nil, jwterror.New(jwterror.KindInvalidJwt, "trailing data after JSON object")
	}
	return m, nil
}
