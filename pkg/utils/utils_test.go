package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		target string
		defP   int
		host   string
		port   int
	}{
		{"example.com:443", 80, "example.com", 443},
		{"example.com", 80, "example.com", 80},
		{"10.0.0.1:22", 80, "10.0.0.1", 22},
		{"::1", 80, "::1", 80},
		{"[::1]:8080", 80, "::1", 8080},
		{"example.com:notaport", 80, "example.com:notaport", 80},
	}

	for _, c := range cases {
		host, port := SplitHostPort(c.target, c.defP)
		assert.Equal(t, c.host, host, c.target)
		assert.Equal(t, c.port, port, c.target)
	}
}

func TestGjsonParseUint64Array(t *testing.T) {
	ids, err := GjsonParseUint64Array(`[1,2,3]`)
	assert.Nil(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	ids, err = GjsonParseUint64Array("")
	assert.Nil(t, err)
	assert.Nil(t, ids)

	_, err = GjsonParseUint64Array(`{"not":"an array"}`)
	assert.NotNil(t, err)
}

func TestGjsonParseStringMap(t *testing.T) {
	m, err := GjsonParseStringMap(`{"X-Token":"abc","Accept":"text/html"}`)
	assert.Nil(t, err)
	assert.Equal(t, "abc", m["X-Token"])
	assert.Equal(t, "text/html", m["Accept"])

	_, err = GjsonParseStringMap(`[1,2]`)
	assert.NotNil(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	s, err := GenerateRandomString(32)
	assert.Nil(t, err)
	assert.Len(t, s, 32)
}
