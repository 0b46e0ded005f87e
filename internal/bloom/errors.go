package bloom

import "errors"

var (
	// ErrInvalidConfig reports contradictory or insufficient filter
	// parameters, an unknown hash method, charset or counter width.
	ErrInvalidConfig = errors.New("bloom: invalid filter configuration")

	// ErrIncompatibleFilters reports a union or intersect between filters
	// whose size, hash count, hash method or charset differ.
	ErrIncompatibleFilters = errors.New("bloom: incompatible filters")

	// ErrUnsupported reports an operation the backend does not implement.
	ErrUnsupported = errors.New("bloom: operation not supported")
)
