// Package utils provides small shared helpers: safe type assertions and
// token counting.
package utils

// SafeAssert performs a type assertion and returns the zero value on failure.
func SafeAssert[T any](value any) (T, bool) {
	if v, ok := value.(T); ok {
		return v, true
	}
	var zero T
	return zero, false
}

// AssertOr performs a type assertion with a fallback value.
func AssertOr[T any](value any, fallback T) T {
	if v, ok := value.(T); ok {
		return v
	}
	return fallback
}
