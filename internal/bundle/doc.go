// Package bundle manages named sets of TLS materials loaded from PEM files
// and keeps them current as the files change on disk.
//
// A Registry owns the bundles. Each bundle registered with ReloadOnUpdate
// has its source files watched; when they change the bundle is rebuilt and
// republished atomically. A rebuild that fails (transient bad read, half
// written rotation) leaves the previously active materials in place, so a
// bad rotation never causes a TLS outage.
//
// CertificateMatcher selects the certificate paired with a private key out
// of a multi-certificate PEM file.
package bundle
