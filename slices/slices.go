package slices

func Map[T, V any](s []T, f func(T) V) []V {
	result := make([]V, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Unique reports whether no value appears twice in s.
func Unique[T comparable](s []T) bool {
	seen := make(map[T]struct{}, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
	}
	return true
}

// SameSet reports whether a and b contain the same values, ignoring order.
func SameSet[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[T]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}
