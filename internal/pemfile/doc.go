// Package pemfile reads and parses PEM-encoded certificates and private
// keys from disk.
//
// The Loader caches parse results keyed by content hash, so a burst of
// reload triggers that re-reads unchanged material does not re-parse it.
package pemfile
