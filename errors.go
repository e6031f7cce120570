package sketchy

import "errors"

// Error kinds. Operations wrap one of these with context, so callers should
// match with [errors.Is].
var (
	// ErrConfiguration is returned for invalid construction parameters.
	ErrConfiguration = errors.New("sketchy: invalid configuration")

	// ErrDimensionMismatch is returned when combining or comparing values whose
	// configuration differs (precision, size, width, num_perm, seed, ...).
	ErrDimensionMismatch = errors.New("sketchy: dimension mismatch")

	// ErrState is returned when an operation is not valid in the current
	// lifecycle phase, e.g. querying an index before it was built or querying
	// an empty structure.
	ErrState = errors.New("sketchy: invalid state")

	// ErrKeyConflict is returned when a key is inserted twice without
	// overwrite intent.
	ErrKeyConflict = errors.New("sketchy: key conflict")

	// ErrInvalidArgument is returned for invalid per-call arguments such as
	// k < 1 or a quantile outside [0, 1].
	ErrInvalidArgument = errors.New("sketchy: invalid argument")

	// ErrInvalidData is returned when serialized data is invalid or corrupted.
	ErrInvalidData = errors.New("sketchy: invalid serialized data")

	// ErrUnsupportedVersion is returned when the serialization version is not supported.
	ErrUnsupportedVersion = errors.New("sketchy: unsupported serialization version")
)
