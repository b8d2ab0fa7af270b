package pemfile

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Certificates(t *testing.T) {
	// Given: a certificate file
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.crt")
	require.NoError(t, os.WriteFile(path, testCertPEM(t, 2), 0o600))

	l := NewLoader()

	// When: loading twice without a content change
	first, err := l.Certificates(path)
	require.NoError(t, err)
	second, err := l.Certificates(path)
	require.NoError(t, err)

	// Then: the cached parse result is reused
	require.Len(t, first, 2)
	assert.Same(t, first[0], second[0])
}

func TestLoader_CertificatesContentChange(t *testing.T) {
	// Given: a loaded certificate file
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.crt")
	require.NoError(t, os.WriteFile(path, testCertPEM(t, 1), 0o600))

	l := NewLoader()
	first, err := l.Certificates(path)
	require.NoError(t, err)

	// When: the file content changes
	require.NoError(t, os.WriteFile(path, testCertPEM(t, 1), 0o600))
	second, err := l.Certificates(path)
	require.NoError(t, err)

	// Then: the new content is parsed fresh
	assert.NotEqual(t, first[0].SerialNumber, second[0].SerialNumber)
}

func TestLoader_PrivateKey(t *testing.T) {
	// Given: a key file
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.key")
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(ecKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path,
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	l := NewLoader()

	// When: loading it twice
	first, err := l.PrivateKey(path)
	require.NoError(t, err)
	second, err := l.PrivateKey(path)
	require.NoError(t, err)

	// Then: the cached key is reused
	assert.Same(t, first, second)
}

func TestLoader_MissingFile(t *testing.T) {
	l := NewLoader()

	_, err := l.Certificates(filepath.Join(t.TempDir(), "nope.crt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.crt")

	_, err = l.PrivateKey(filepath.Join(t.TempDir(), "nope.key"))
	require.Error(t, err)
}
