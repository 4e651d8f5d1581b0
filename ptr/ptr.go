package ptr

func To[T any](v T) *T {
	return &v
}

// NonZero returns nil for the zero value so optional JSON fields are
// omitted.
func NonZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
