package taskhive

import (
	"fmt"
	"maps"
	"math"
	"sort"
)

// Bag is a string-keyed collection of scalar values used for job options and parameters.
// Values are normalized on write: every integer kind becomes int64 and float32 becomes float64,
// which is also what a persisted record decodes back into.
type Bag map[string]any

// ValidateKey rejects keys that cannot address a bag entry.
func ValidateKey(k string) error {
	if k == "" {
		return ErrInvalidKey
	}
	return nil
}

// ValidateValue rejects anything that is not a scalar and returns the normalized value.
// Non-finite floats and unsigned values beyond the int64 range are rejected as well.
func ValidateValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x, nil
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return fitInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return fitInt64(x)
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidValue, v)
}

func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v is not finite", ErrInvalidValue, f)
	}
	return f, nil
}

func fitInt64(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, u)
	}
	return int64(u), nil
}

// NewBag validates every entry of src and returns a normalized copy.
func NewBag(src map[string]any) (Bag, error) {
	b := make(Bag, len(src))
	for k, v := range src {
		if err := b.Set(k, v); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Set validates and stores a value.
func (b Bag) Set(k string, v any) error {
	if err := ValidateKey(k); err != nil {
		return err
	}
	nv, err := ValidateValue(v)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	b[k] = nv
	return nil
}

// Get returns the value stored under k.
func (b Bag) Get(k string) (any, bool) {
	v, ok := b[k]
	return v, ok
}

// String returns the value under k if it is a string.
func (b Bag) String(k string) string {
	s, _ := b[k].(string)
	return s
}

// Int returns the value under k if it is integral.
func (b Bag) Int(k string) (int64, bool) {
	switch x := b[k].(type) {
	case int64:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	}
	return 0, false
}

// Has reports whether k is present.
func (b Bag) Has(k string) bool {
	_, ok := b[k]
	return ok
}

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (b Bag) Clone() Bag {
	if b == nil {
		return Bag{}
	}
	return maps.Clone(b)
}

// Keys returns the bag keys in sorted order.
func (b Bag) Keys() []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// missing returns the first required key absent from b.
func (b Bag) missing(required []string) (string, bool) {
	for _, k := range required {
		if !b.Has(k) {
			return k, true
		}
	}
	return "", false
}
