// Package canon provides the canonical serialization used to fingerprint
// commands and to compare them for equality across peers. Two commands that
// are semantically identical but decoded from JSON with different key
// orderings must produce the same canonical bytes and the same fingerprint.
package canon

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Fingerprint is a deterministic hash of a command's canonical form, used as
// the key of the executed-request set (at-most-once apply). Cross-verification
// compares commands by their canonical bytes (Encode, Equal) instead.
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return fmt.Sprintf("%x", f[:])
}

// Encode renders v (expected to be a JSON object, i.e. map[string]any or a
// struct that round-trips through encoding/json into one) into a canonical
// byte form: object keys sorted lexicographically, numbers formatted with
// strconv's shortest round-trippable representation. Equal values under
// Encode are, by construction, byte-identical.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canon: unmarshal: %w", err)
	}
	var buf []byte
	buf = appendCanonical(buf, generic)
	return buf, nil
}

// Hash returns the fingerprint of v's canonical form.
func Hash(v any) (Fingerprint, error) {
	enc, err := Encode(v)
	if err != nil {
		return Fingerprint{}, err
	}
	return sha256.Sum256(enc), nil
}

func appendCanonical(buf []byte, v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = appendCanonical(buf, val[k])
		}
		buf = append(buf, '}')
	case []any:
		buf = append(buf, '[')
		for i, elem := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendCanonical(buf, elem)
		}
		buf = append(buf, ']')
	case float64:
		buf = append(buf, strconv.FormatFloat(val, 'g', -1, 64)...)
	case string:
		b, _ := json.Marshal(val)
		buf = append(buf, b...)
	case bool, nil:
		b, _ := json.Marshal(val)
		buf = append(buf, b...)
	default:
		b, _ := json.Marshal(val)
		buf = append(buf, b...)
	}
	return buf
}

// Equal reports whether a and b have the same canonical form.
func Equal(a, b any) (bool, error) {
	ea, err := Encode(a)
	if err != nil {
		return false, err
	}
	eb, err := Encode(b)
	if err != nil {
		return false, err
	}
	return string(ea) == string(eb), nil
}
