// Package storage defines the data-directory file abstraction used for the
// vault and settings documents.
package storage

// Provider is the interface for data-directory file operations.
type Provider interface {
	// Read returns the raw bytes of the file at path (relative to the root).
	// A missing file yields an error matching fs.ErrNotExist.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Exists reports whether a regular file is present at path.
	Exists(path string) (bool, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Abs resolves path to an absolute file-system path under the root.
	Abs(path string) (string, error)
}
