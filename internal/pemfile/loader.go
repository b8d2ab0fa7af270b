package pemfile

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds the parse caches. A deployment has a handful of
// bundles, each with at most three files; 64 leaves plenty of headroom.
const defaultCacheSize = 64

// Loader reads PEM files and caches parse results by content hash.
// Safe for concurrent use.
type Loader struct {
	certs *lru.Cache[string, []*x509.Certificate]
	keys  *lru.Cache[string, crypto.PrivateKey]
}

// NewLoader creates a Loader with the default cache size.
func NewLoader() *Loader {
	certs, _ := lru.New[string, []*x509.Certificate](defaultCacheSize)
	keys, _ := lru.New[string, crypto.PrivateKey](defaultCacheSize)
	return &Loader{certs: certs, keys: keys}
}

// Certificates reads and parses every certificate in the file at path.
func (l *Loader) Certificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificates %s: %w", path, err)
	}
	sum := contentHash(data)
	if certs, ok := l.certs.Get(sum); ok {
		return certs, nil
	}
	certs, err := ParseCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.certs.Add(sum, certs)
	return certs, nil
}

// PrivateKey reads and parses the private key in the file at path.
func (l *Loader) PrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	sum := contentHash(data)
	if key, ok := l.keys.Get(sum); ok {
		return key, nil
	}
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.keys.Add(sum, key)
	return key, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
