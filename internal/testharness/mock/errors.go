package mock

import "errors"

// Simulated target errors. The simulated debugger turns them into ^error
// records.
var (
	// ErrNotPowered is returned when operating on an unpowered target.
	ErrNotPowered = errors.New("target not powered")

	// ErrNoSuchAccessPort is returned when attaching to an AP the last scan did not list.
	ErrNoSuchAccessPort = errors.New("no such access port")

	// ErrNotAttached is returned when an operation needs an attached target.
	ErrNotAttached = errors.New("not attached")

	// ErrNotCore is returned when an operation needs the core AP.
	ErrNotCore = errors.New("operation needs the core access port")

	// ErrRefused is returned when a fault injection refuses an operation.
	ErrRefused = errors.New("refused")
)
