package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContext(t *testing.T) {
	got, err := parseContext([]string{"party=Employer AG", " language = de ", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"party": "Employer AG", "language": "de", "empty": ""}, got)
}

func TestParseContext_Nil(t *testing.T) {
	got, err := parseContext(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseContext_Invalid(t *testing.T) {
	for _, bad := range []string{"novalue", "=v"} {
		_, err := parseContext([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestReadDocument_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contract.txt")
	require.NoError(t, os.WriteFile(path, []byte("Section 1. Term."), 0o600))

	text, err := readDocument(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Section 1. Term.", text)
}

func TestReadDocument_Stdin(t *testing.T) {
	text, err := readDocument("-", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)
}

func TestReadDocument_Missing(t *testing.T) {
	_, err := readDocument(filepath.Join(t.TempDir(), "nope.txt"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read document")
}

func TestInputFlags_Input(t *testing.T) {
	f := inputFlags{
		file:         "-",
		documentType: " nda ",
		jurisdiction: "CH",
		context:      []string{"party=A"},
		user:         "u-7",
	}
	in, err := f.input(strings.NewReader("Confidential information means ..."))
	require.NoError(t, err)
	assert.Equal(t, "nda", in.DocumentType)
	assert.Equal(t, "CH", in.Jurisdiction)
	assert.Equal(t, "u-7", in.UserID)
	assert.Equal(t, "A", in.Context["party"])
}
