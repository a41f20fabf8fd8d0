package debounce

// Number is the set of numeric kinds NonNegative accepts.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// NonNegative clamps v to zero. Cost and amount fields never go below it.
func NonNegative[T Number](v T) T {
	if v < 0 {
		return 0
	}
	return v
}
