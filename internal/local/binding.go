package local

// bindKind tags the storage class of a BoundValue. The zero value is
// deliberately invalid so an uninitialised BoundValue cannot bind silently.
type bindKind int

const (
	kindInvalid bindKind = iota
	kindNull
	kindInt64
	kindFloat64
	kindText
	kindBlob
)

// String returns the kind name for diagnostics.
func (k bindKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindInt64:
		return "int64"
	case kindFloat64:
		return "float64"
	case kindText:
		return "text"
	case kindBlob:
		return "blob"
	default:
		return "invalid"
	}
}

// BoundValue is a typed positional bind argument for statements and queries.
// It is a closed union over the five storage classes the engine understands:
// null, 64-bit integer, double, text, and binary. Construct values with
// Null, Int64, Float64, Text, or Blob; there is no way to represent any
// other kind.
type BoundValue struct {
	kind bindKind
	i    int64
	f    float64
	s    string
	b    []byte
}

// Null returns a BoundValue binding SQL NULL.
func Null() BoundValue {
	return BoundValue{kind: kindNull}
}

// Int64 returns a BoundValue binding a 64-bit integer.
func Int64(v int64) BoundValue {
	return BoundValue{kind: kindInt64, i: v}
}

// Float64 returns a BoundValue binding a double.
func Float64(v float64) BoundValue {
	return BoundValue{kind: kindFloat64, f: v}
}

// Text returns a BoundValue binding a text string.
func Text(v string) BoundValue {
	return BoundValue{kind: kindText, s: v}
}

// Blob returns a BoundValue binding a byte sequence.
func Blob(v []byte) BoundValue {
	return BoundValue{kind: kindBlob, b: v}
}

// bindArgs converts bound values into positional driver arguments, one per
// value in order. A fresh slice is returned on every call, so re-binding a
// statement always replaces any prior arguments. Encountering a value that
// was not built by one of the five constructors is a fatal contract
// violation, never a silent coercion.
func bindArgs(values []BoundValue) []any {
	args := make([]any, len(values))
	for i, v := range values {
		switch v.kind {
		case kindNull:
			args[i] = nil
		case kindInt64:
			args[i] = v.i
		case kindFloat64:
			args[i] = v.f
		case kindText:
			args[i] = v.s
		case kindBlob:
			args[i] = v.b
		default:
			fail("unknown bind argument at position %d: %+v of kind %s", i+1, v, v.kind)
		}
	}
	return args
}
