// Package ckey derives content-addressed keys for pipeline stages.
//
// A Key is a SHA-256 digest over a canonical, length-prefixed serialization
// of a namespace plus an ordered list of parts. Identical inputs always
// produce the identical key; any changed part, reordered part, or different
// namespace produces a different key. The length prefixes make the
// serialization unambiguous ("ab"+"c" never collides with "a"+"bc"), and the
// namespace separates the hash domain per entity type so a product key can
// never collide with a snapshot key built from the same strings.
//
// Callers must pass only canonical values: normalized URLs, version
// constants, prior-stage keys. Never wall-clock time, never random values,
// and map contents only after sorting.
package ckey

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Key is a stable, fixed-length, content-addressed identifier (64 hex chars).
type Key string

// Derive computes the key for namespace and the ordered parts.
func Derive(namespace string, parts ...string) Key {
	h := sha256.New()
	writeFrame(h, []byte(namespace))
	for _, p := range parts {
		writeFrame(h, []byte(p))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// DeriveMap derives a key from namespace, parts, and a map serialized in
// sorted-key order. Use for inputs that arrive as maps (e.g. option bags);
// iteration order of the map never leaks into the key.
func DeriveMap(namespace string, m map[string]string, parts ...string) Key {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flat := make([]string, 0, len(parts)+2*len(m))
	flat = append(flat, parts...)
	for _, k := range keys {
		flat = append(flat, k, m[k])
	}
	return Derive(namespace, flat...)
}

// String returns the hex form. Keys are safe for use in filenames and URLs.
func (k Key) String() string { return string(k) }

// Short returns the first 12 hex chars, for log lines only. Never use the
// short form as a storage or cache key.
func (k Key) Short() string {
	if len(k) < 12 {
		return string(k)
	}
	return string(k[:12])
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool { return k == "" }

func writeFrame(h interface{ Write(p []byte) (int, error) }, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}
