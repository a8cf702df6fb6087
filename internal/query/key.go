package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key addresses one cached collection. Segments are strings, numbers,
// bools or small JSON-encodable records (filters). Keys are hierarchical:
// {"favorites"} is a prefix of {"favorites", "list", "service"}, so
// invalidating the former reaches every favorites list regardless of filter.
type Key []any

// segment returns the canonical encoding of one segment. encoding/json
// sorts map keys, so structurally equal records encode identically.
func segment(v any) string {
	if s, ok := v.(string); ok {
		return "s:" + s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("?:%#v", v)
	}
	return "j:" + string(b)
}

func (k Key) segments() []string {
	out := make([]string, len(k))
	for i, v := range k {
		out[i] = segment(v)
	}
	return out
}

// String returns the canonical form of the key, suitable as a map key
func (k Key) String() string {
	return strings.Join(k.segments(), "\x1f")
}

// Equal reports whether both keys have deep-equal segments
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if segment(k[i]) != segment(other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix addresses k or one of its ancestors
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if segment(k[i]) != segment(prefix[i]) {
			return false
		}
	}
	return true
}

// Root returns the first segment's canonical form ("" for an empty key)
func (k Key) Root() string {
	if len(k) == 0 {
		return ""
	}
	return segment(k[0])
}

// Append returns a new key extended with segs
func (k Key) Append(segs ...any) Key {
	out := make(Key, 0, len(k)+len(segs))
	out = append(out, k...)
	return append(out, segs...)
}

// hasPrefixSegs is HasPrefix over pre-encoded segments
func hasPrefixSegs(segs, prefix []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}
