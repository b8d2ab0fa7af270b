package bundle

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/certwatch/certwatch/internal/pemfile"
)

// Source describes where one bundle's materials live on disk.
type Source struct {
	// Name identifies the bundle.
	Name string

	// Certificate is the path to the PEM certificate file. It may contain
	// the full chain, in any order; the leaf is selected by key pairing.
	Certificate string

	// PrivateKey is the path to the PEM private key file.
	PrivateKey string

	// TrustAnchors is the optional path to a PEM file of trusted roots.
	TrustAnchors string

	// ReloadOnUpdate requests that the bundle be rebuilt when any of its
	// files change.
	ReloadOnUpdate bool

	// QuietPeriod is the debounce window for reloads. Zero selects the
	// registry's default.
	QuietPeriod time.Duration
}

// paths returns the filesystem locations the source reads from.
func (s Source) paths() []string {
	paths := []string{s.Certificate, s.PrivateKey}
	if s.TrustAnchors != "" {
		paths = append(paths, s.TrustAnchors)
	}
	return paths
}

// Bundle is an immutable snapshot of loaded TLS materials. Republishing a
// bundle replaces the whole snapshot; callers must not mutate it.
type Bundle struct {
	Name        string
	Certificate tls.Certificate
	Roots       *x509.CertPool
	LoadedAt    time.Time
}

// load builds a bundle snapshot from its source files. The leaf is the
// certificate whose public key pairs with the private key; the remaining
// certificates follow it as the chain, in file order.
func load(loader *pemfile.Loader, src Source) (*Bundle, error) {
	key, err := loader.PrivateKey(src.PrivateKey)
	if err != nil {
		return nil, err
	}
	certs, err := loader.Certificates(src.Certificate)
	if err != nil {
		return nil, err
	}

	matcher := NewCertificateMatcher(key)
	leaf := -1
	for i, cert := range certs {
		if matcher.Matches(cert) {
			leaf = i
			break
		}
	}
	if leaf < 0 {
		return nil, fmt.Errorf("bundle %q: private key %s does not match any certificate in %s",
			src.Name, src.PrivateKey, src.Certificate)
	}

	chain := make([][]byte, 0, len(certs))
	chain = append(chain, certs[leaf].Raw)
	for i, cert := range certs {
		if i != leaf {
			chain = append(chain, cert.Raw)
		}
	}

	b := &Bundle{
		Name: src.Name,
		Certificate: tls.Certificate{
			Certificate: chain,
			PrivateKey:  key,
			Leaf:        certs[leaf],
		},
		LoadedAt: time.Now(),
	}

	if src.TrustAnchors != "" {
		roots, err := loader.Certificates(src.TrustAnchors)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		for _, root := range roots {
			pool.AddCert(root)
		}
		b.Roots = pool
	}
	return b, nil
}
