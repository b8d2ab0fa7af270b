package bundle

import (
	"crypto"
	"crypto/x509"
)

// CertificateMatcher reports whether candidate certificates are paired
// with a held private key. It carries no state beyond the bound key; every
// call is independent and safe for concurrent use.
type CertificateMatcher struct {
	key crypto.PrivateKey
}

// NewCertificateMatcher creates a matcher bound to key.
func NewCertificateMatcher(key crypto.PrivateKey) *CertificateMatcher {
	return &CertificateMatcher{key: key}
}

// Matches reports whether cert's public key is cryptographically paired
// with the bound private key. All standard key types (RSA, ECDSA, Ed25519)
// expose their public half through crypto.Signer and support Equal;
// anything else reports false rather than erroring.
func (m *CertificateMatcher) Matches(cert *x509.Certificate) bool {
	if m.key == nil || cert == nil {
		return false
	}
	signer, ok := m.key.(crypto.Signer)
	if !ok {
		return false
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return pub.Equal(cert.PublicKey)
}

// MatchesAny reports whether at least one candidate matches, stopping at
// the first hit. An empty candidate set reports false.
func (m *CertificateMatcher) MatchesAny(certs []*x509.Certificate) bool {
	for _, cert := range certs {
		if m.Matches(cert) {
			return true
		}
	}
	return false
}
