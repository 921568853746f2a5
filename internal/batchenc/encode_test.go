package batchenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsJSON(t *testing.T) {
	cases := map[string]bool{
		"application/json":               true,
		"APPLICATION/JSON":               true,
		"application/json; charset=utf-8": true,
		"application/vnd.api+json":       true,
		"application/octet-stream":       false,
		"text/plain":                     false,
		"":                               false,
	}
	for ct, want := range cases {
		assert.Equal(t, want, IsJSON(ct), "content type %q", ct)
	}
}

func TestEncodeJSON(t *testing.T) {
	got := Encode("application/json", [][]byte{[]byte(`"a"`), []byte(`"b"`)})
	assert.Equal(t, `["a","b"]`, string(got))
}

func TestEncodeJSONSingleMessage(t *testing.T) {
	got := Encode("application/json", [][]byte{[]byte(`{"x":1}`)})
	assert.Equal(t, `[{"x":1}]`, string(got))
}

func TestEncodeBytes(t *testing.T) {
	got := Encode("application/octet-stream", [][]byte{[]byte("foo"), []byte("bar")})
	assert.Equal(t, "foobar", string(got))
}
