package cache

import "strings"

// KeyPrefix namespaces every index key.
const KeyPrefix = "connsync:index"

// IndexKey identifies the index of one persisted collection.
type IndexKey struct {
	Tenant   string
	Subject  string
	Platform string
}

// String returns the Redis key of the member set.
// Format: connsync:index:<tenant>:<subject>:<platform>
func (k IndexKey) String() string {
	return strings.Join([]string{KeyPrefix, escape(k.Tenant), escape(k.Subject), escape(k.Platform)}, ":")
}

// FingerprintKey returns the Redis key of the fingerprint document.
func (k IndexKey) FingerprintKey() string {
	return k.String() + ":fingerprint"
}

// escape keeps ':' inside identifiers from colliding with the separator.
func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, ":", `\:`).Replace(s)
}
