// Package canonical implements deterministic JSON serialization for state
// hashing. Two semantically equal JSON values always canonicalize to
// identical bytes: object keys are sorted lexicographically, arrays keep
// their order, strings and booleans and null pass through, and numbers are
// normalized through float64 with non-finite values coerced to 0. Absent
// object fields are omitted entirely (struct inputs drop them via
// omitempty). The output carries no whitespace.
package canonical

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/hashgraph-online/flora-price-oracle/shared/hashutil"
	"github.com/pkg/errors"
)

// Canonicalize returns the canonical encoding of a JSON-shaped value. Maps,
// slices and scalars are serialized directly; any other type is first
// round-tripped through encoding/json, so tagged structs canonicalize the
// same way their decoded form would.
func Canonicalize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the lowercase hex SHA-384 of the canonical encoding of v.
func Digest(v interface{}) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return hashutil.HashHex(b), nil
}

func appendValue(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return appendString(buf, val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return errors.Wrapf(err, "malformed number %q", val.String())
		}
		appendNumber(buf, f)
	case float64:
		appendNumber(buf, val)
	case float32:
		appendNumber(buf, float64(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case map[string]interface{}:
		return appendObject(buf, val)
	case []interface{}:
		return appendArray(buf, val)
	default:
		return appendOther(buf, v)
	}
	return nil
}

func appendObject(buf *bytes.Buffer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := appendValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendArray(buf *bytes.Buffer, arr []interface{}) error {
	buf.WriteByte('[')
	for i, el := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendValue(buf, el); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// appendOther handles tagged structs, typed slices and typed maps by
// round-tripping through encoding/json and canonicalizing the decoded tree.
func appendOther(buf *bytes.Buffer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "could not marshal value for canonicalization")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return errors.Wrap(err, "could not decode value for canonicalization")
	}
	return appendValue(buf, tree)
}

func appendNumber(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		buf.WriteByte('0')
		return
	}
	// json.Marshal emits the shortest round-trip form, matching the
	// representation other canonicalizer implementations agree on.
	b, _ := json.Marshal(f)
	buf.Write(b)
}

func appendString(buf *bytes.Buffer, s string) error {
	var scratch bytes.Buffer
	enc := json.NewEncoder(&scratch)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "could not encode string")
	}
	buf.Write(bytes.TrimRight(scratch.Bytes(), "\n"))
	return nil
}
