package cache

import "time"

// Fingerprint describes the collection document an index was built from.
type Fingerprint struct {
	// Size is the document size in bytes.
	Size int64 `json:"size"`

	// ModTime is the document modification time.
	ModTime time.Time `json:"mod_time"`

	// Members is the number of keys written to the set.
	Members int `json:"members"`

	// BuiltAt is when the index was rebuilt.
	BuiltAt time.Time `json:"built_at"`
}

// Equal reports whether two fingerprints describe the same document.
// Members and BuiltAt are informational and ignored.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if f == nil || other == nil {
		return false
	}
	return f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}
