package tensor

// DType enumerates supported data types. Only F32 is used at runtime; the
// others are reserved for future mixed-precision storage.
type DType uint8

const (
	F32 DType = iota
	F16
	BF16
	I32
	I64
)

// Size returns the byte width of the data type.
func (d DType) Size() int {
	switch d {
	case F32, I32:
		return 4
	case F16, BF16:
		return 2
	case I64:
		return 8
	default:
		return 4
	}
}

// String returns a human-readable name for the data type.
func (d DType) String() string {
	names := [...]string{"f32", "f16", "bf16", "i32", "i64"}
	if int(d) < len(names) {
		return names[d]
	}
	return "unknown"
}
