// Package util holds small generic helpers shared across packages.
package util

// Ptr returns a pointer to v, for optional protocol fields set from
// literals.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
