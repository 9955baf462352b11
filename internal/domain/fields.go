package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// MaxFields is the number of key/value pairs an order can carry.
const MaxFields = 4

// Fields is the identity claim being attested, e.g. {userId, username}.
// Field order carries no meaning.
type Fields map[string]string

// NewFields converts decoded JSON or form values into Fields. Values must be
// strings, booleans or numbers; they are stored in their string form.
func NewFields(raw map[string]any) (Fields, error) {
	if len(raw) == 0 || len(raw) > MaxFields {
		return nil, fmt.Errorf("%w: expected 1..%d fields, got %d", ErrInvalidData, MaxFields, len(raw))
	}

	fields := make(Fields, len(raw))
	for key, value := range raw {
		s, ok := stringifyPrimitive(value)
		if !ok {
			return nil, fmt.Errorf("%w: field %q has non-primitive value", ErrInvalidData, key)
		}
		fields[key] = s
	}

	if err := fields.Validate(); err != nil {
		return nil, err
	}
	return fields, nil
}

// ParseFields decodes a form-encoded field string (k1=v1&k2=v2).
func ParseFields(encoded string) (Fields, error) {
	values, err := url.ParseQuery(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	raw := make(map[string]any, len(values))
	for key, vs := range values {
		if len(vs) != 1 {
			return nil, fmt.Errorf("%w: field %q repeated", ErrInvalidData, key)
		}
		raw[key] = vs[0]
	}
	return NewFields(raw)
}

func stringifyPrimitive(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// Validate checks the field count and that no key or value is empty.
func (f Fields) Validate() error {
	if len(f) == 0 || len(f) > MaxFields {
		return fmt.Errorf("%w: expected 1..%d fields, got %d", ErrInvalidData, MaxFields, len(f))
	}
	for key, value := range f {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidData)
		}
		if value == "" {
			return fmt.Errorf("%w: field %q is empty", ErrInvalidData, key)
		}
	}
	return nil
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := lo.Keys(f)
	sort.Strings(keys)
	return keys
}

// Equal reports whether both sets hold exactly the same keys and values.
func (f Fields) Equal(other Fields) bool {
	if len(f) != len(other) {
		return false
	}
	for key, value := range f {
		if v, ok := other[key]; !ok || v != value {
			return false
		}
	}
	return true
}

// Encode returns the form encoding used in pairing payloads.
func (f Fields) Encode() string {
	values := make(url.Values, len(f))
	for key, value := range f {
		values.Set(key, value)
	}
	return values.Encode()
}

// Canonical is the order-independent match key: the form encoding with
// sorted keys.
func (f Fields) Canonical() string {
	return f.Encode()
}

// String lists the fields as "k: v" pairs in key order.
func (f Fields) String() string {
	return strings.Join(lo.Map(f.Keys(), func(key string, _ int) string {
		return key + ": " + f[key]
	}), ", ")
}
