package utils

// Ptr returns a pointer to v. Keeps test fixtures terse.
func Ptr[T any](v T) *T {
	return &v
}
