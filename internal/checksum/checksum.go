// Package checksum fingerprints file contents so the vault watcher can tell
// the service's own writes apart from external edits.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Recorder remembers the last checksum written per path. Safe for
// concurrent use.
type Recorder struct {
	mu   sync.Mutex
	last map[string]string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{last: make(map[string]string)}
}

// Remember records data as the current content of path.
func (r *Recorder) Remember(path string, data []byte) {
	sum := Sum(data)
	r.mu.Lock()
	r.last[path] = sum
	r.mu.Unlock()
}

// Forget drops what is known about path.
func (r *Recorder) Forget(path string) {
	r.mu.Lock()
	delete(r.last, path)
	r.mu.Unlock()
}

// Matches reports whether data is what was last remembered for path.
func (r *Recorder) Matches(path string, data []byte) bool {
	sum := Sum(data)
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.last[path]
	return ok && last == sum
}
