package outpost

import (
	"errors"
)

// The errors in Outpost library can check the error type via errors.Is function.
var (
	// ErrInvalidConfig is a error for if the settings of the agent were wrong.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrCommunicate is a error for if connect or communicate with the backend server.
	ErrCommunicate = errors.New("backend communication error")

	// ErrInvalidRecord is a error for if failed to parse a record because it was invalid format.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrIO is a error for if failed to read/write the ping buffer.
	ErrIO = errors.New("failed to read/write buffer")

	// ErrUnsupportedBuffer is a error for if the buffer location uses unsupported scheme.
	ErrUnsupportedBuffer = errors.New("unsupported buffer")
)
