// Package canonicaljson implements the deterministic JSON serialization
// required across Atlas's ingest, catalog, and response-envelope boundaries:
// object keys sorted, minimal separators, no trailing whitespace, and a fixed
// point under re-serialize-and-parse. The walker is modeled on the
// byte-budgeted canonical encoder used by the configuration loader this
// module descends from, generalized from map[string]any trees to arbitrary
// marshalable values by first round-tripping through encoding/json with
// json.Number preserved.
package canonicaljson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
)

var ErrTooBig = errors.New("canonicaljson: output exceeds max bytes")

var numberRe = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Marshal encodes v as canonical JSON: sorted object keys, comma/colon
// separators with no surrounding whitespace. v is first marshaled through
// encoding/json (preserving field order via struct tags is irrelevant since
// object keys are always re-sorted) and then decoded with UseNumber so
// numeric literals are preserved byte-for-byte rather than reformatted.
func Marshal(v any) ([]byte, error) {
	return MarshalBounded(v, 0)
}

// MarshalBounded is Marshal with an optional max-byte budget; maxBytes<=0
// means unbounded.
func MarshalBounded(v any, maxBytes int64) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return encode(generic, maxBytes)
}

// IsFixedPoint reports whether re-serializing the parse of b yields the same
// bytes, the invariant required of every canonical JSON emitter (I4).
func IsFixedPoint(b []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	out, err := encode(v, 0)
	if err != nil {
		return false
	}
	return bytes.Equal(out, b)
}

// SHA256Hex returns the lowercase-hex sha256 of b, the digest form used for
// artifact_hash, ETag, and epoch_hash computations throughout the system.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func encode(v any, maxBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	write := func(b []byte) error {
		if maxBytes > 0 && int64(buf.Len()+len(b)) > maxBytes {
			return ErrTooBig
		}
		_, _ = buf.Write(b)
		return nil
	}

	var enc func(any) error
	enc = func(x any) error {
		switch t := x.(type) {
		case nil:
			return write([]byte("null"))
		case bool:
			if t {
				return write([]byte("true"))
			}
			return write([]byte("false"))
		case string:
			b, err := json.Marshal(t)
			if err != nil {
				return err
			}
			return write(b)
		case json.Number:
			s := strings.TrimSpace(t.String())
			if s == "" || !numberRe.MatchString(s) {
				return write([]byte("null"))
			}
			return write([]byte(s))
		case float64:
			b, err := json.Marshal(t)
			if err != nil {
				return err
			}
			return write(b)
		case []any:
			if err := write([]byte("[")); err != nil {
				return err
			}
			for i, item := range t {
				if i > 0 {
					if err := write([]byte(",")); err != nil {
						return err
					}
				}
				if err := enc(item); err != nil {
					return err
				}
			}
			return write([]byte("]"))
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if err := write([]byte("{")); err != nil {
				return err
			}
			for i, k := range keys {
				if i > 0 {
					if err := write([]byte(",")); err != nil {
						return err
					}
				}
				kb, err := json.Marshal(k)
				if err != nil {
					return err
				}
				if err := write(kb); err != nil {
					return err
				}
				if err := write([]byte(":")); err != nil {
					return err
				}
				if err := enc(t[k]); err != nil {
					return err
				}
			}
			return write([]byte("}"))
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return err
			}
			return write(b)
		}
	}

	if err := enc(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
