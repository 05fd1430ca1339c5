package weakcache

import "fmt"

type constError string

const (
	// ErrInvalidCapacity may be returned from [New], [NewWeak] and [NewTiered].
	ErrInvalidCapacity = constError("invalid capacity")
	// ErrNotOwned is the panic value (wrapped) when an entry
	// is routed to a cache or policy that does not own it.
	ErrNotOwned = constError("entry not owned")
)

func (errStr constError) Error() string { return string(errStr) }

func capacityError(capacity int) error {
	return fmt.Errorf(
		"%w: must be within [%d,%d] but %d was requested",
		ErrInvalidCapacity, MinimumCapacity, MaximumCapacity, capacity)
}

func notOwnedError[Key comparable](key Key, owner string) error {
	return fmt.Errorf(
		"%w: entry for key `%v` is not held by this %s",
		ErrNotOwned, key, owner)
}
