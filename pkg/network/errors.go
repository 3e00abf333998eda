package network

import "errors"

var (
	// ErrConfiguration reports an invalid network or transport setup.
	ErrConfiguration = errors.New("configuration error")
	// ErrLifecycle reports use of a closed network or a destroyed slab or context.
	ErrLifecycle = errors.New("lifecycle misuse")
	// ErrSlabNotFound is returned when a packet targets a slab that is not registered here.
	ErrSlabNotFound = errors.New("slab not found")
)
