package main

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"visibility=team", "convert=true", "visibility=org"})
	require.NoError(t, err)

	assert.Equal(t, url.Values{
		"visibility": {"team", "org"},
		"convert":    {"true"},
	}, params)
}

func TestParseParams_Empty(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestParseParams_Invalid(t *testing.T) {
	for _, bad := range []string{"noequals", "=value"} {
		_, err := parseParams([]string{bad})
		require.Error(t, err, bad)
	}

	// Empty value is allowed.
	params, err := parseParams([]string{"key="})
	require.NoError(t, err)
	assert.Equal(t, url.Values{"key": {""}}, params)
}

func TestDetectMIMEType(t *testing.T) {
	assert.Equal(t, "image/jpeg", detectMIMEType("/photos/holiday.jpg"))
	assert.Empty(t, detectMIMEType("/bin/no-extension"))

	// Charset parameters are stripped.
	if got := detectMIMEType("readme.txt"); got != "" {
		assert.Equal(t, "text/plain", got)
	}
}

func TestUploadedID(t *testing.T) {
	assert.Equal(t, " as f1", uploadedID(`{"id":"f1"}`))
	assert.Empty(t, uploadedID(`{"title":"x"}`))
	assert.Empty(t, uploadedID("not json"))
	assert.Empty(t, uploadedID(""))
}
