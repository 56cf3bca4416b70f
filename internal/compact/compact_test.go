package compact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

func TestDecodeSegment(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "plain", input: "aGVsbG8", want: []byte("hello")},
		{name: "full quantum needs no padding", input: "aGVsbG8h", want: []byte("hello!")},
		{name: "padded equals", input: "aGk=", want: []byte("hi")},
		{name: "two equals", input: "aA==", want: []byte("h")},
		{name: "empty", input: "", want: []byte{}},
		{name: "url alphabet", input: "_-8", want: []byte{0xff, 0xef}},
		{name: "standard alphabet rejected", input: "a+b/", wantErr: true},
		{name: "length mod 4 is 1", input: "aaaaa", wantErr: true},
		{name: "three equals", input: "a===", wantErr: true},
		{name: "inner padding", input: "a=bc", wantErr: true},
		{name: "whitespace", input: "aGV sbG8", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSegment(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, jwterror.IsKind(err, jwterror.KindInvalidJwt))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0},
		{0xff},
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
		{0x00, 0x01, 0x02, 0xfe, 0xff, 0x7f, 0x80},
	}
	for _, in := range inputs {
		out, err := DecodeSegment(EncodeSegment(in))
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestSplit(t *testing.T) {
	t.Run("well-formed token splits and reassembles", func(t *testing.T) {
		token := "eyJhbGciOiJSUzI1NiJ9.eyJpc3MiOiJ4In0.c2ln"
		tok, err := Split(token)
		require.NoError(t, err)

		assert.Equal(t, "eyJhbGciOiJSUzI1NiJ9", tok.HeaderB64)
		assert.Equal(t, "eyJpc3MiOiJ4In0", tok.PayloadB64)
		assert.Equal(t, "c2ln", tok.SignatureB64)
		assert.Equal(t, []byte("eyJhbGciOiJSUzI1NiJ9.eyJpc3MiOiJ4In0"), tok.SigningInput)
		assert.Equal(t, token, tok.HeaderB64+"."+tok.PayloadB64+"."+tok.SignatureB64)
	})

	tests := []struct {
		name  string
		input string
	}{
		{name: "two segments", input: "a.b"},
		{name: "four segments", input: "a.b.c.d"},
		{name: "empty header", input: ".b.c"},
		{name: "empty payload", input: "a..c"},
		{name: "empty signature", input: "a.b."},
		{name: "empty string", input: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.input)
			require.Error(t, err)
			assert.True(t, jwterror.IsKind(err, jwterror.KindInvalidJwt))
		})
	}
}

func TestParseJSONObject(t *testing.T) {
	t.Run("object parses with numbers preserved", func(t *testing.T) {
		m, err := ParseJSONObject([]byte(`{"iss":"x","exp":1700000000}`))
		require.NoError(t, err)
		assert.Equal(t, "x", m["iss"])
		assert.Equal(t, json.Number("1700000000"), m["exp"])
	})

	tests := []struct {
		name  string
		input string
	}{
		{name: "array", input: `[1,2]`},
		{name: "string", input: `"hi"`},
		{name: "number", input: `7`},
		{name: "null", input: `null`},
		{name: "truncated", input: `{"iss":`},
		{name: "trailing garbage", input: `{"a":1} {"b":2}`},
		{name: "empty", input: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSONObject([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, jwterror.IsKind(err, jwterror.KindInvalidJwt))
		})
	}
}
