package tenant

import "errors"

var (
	// ErrNilScopeFunc is returned when a nil function is passed to the executor.
	ErrNilScopeFunc = errors.New("nil function passed to tenant executor")

	// ErrMissingTenantID is returned when a zero tenant ID is used for scoping.
	ErrMissingTenantID = errors.New("tenant ID is required for scoped execution")
)
