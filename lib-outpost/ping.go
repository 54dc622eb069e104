package outpost

import (
	"fmt"

	"github.com/goccy/go-json"
)

const (
	// PingKindUnknown means the ping was recorded by an old agent that does not tag samples.
	PingKindUnknown PingKind = iota

	// PingInitial is the first sample of a double-sample.
	PingInitial

	// PingAlive is the second sample of a double-sample.
	PingAlive
)

// PingKind tells which sample of the double-sample made a Ping.
type PingKind int8

// ParsePingKind parses kind string.
//
// If passed unsupported string, it will returns PingKindUnknown.
func ParsePingKind(raw string) PingKind {
	switch raw {
	case "INITIAL":
		return PingInitial
	case "ALIVE":
		return PingAlive
	default:
		return PingKindUnknown
	}
}

// String is make PingKind a string.
func (k PingKind) String() string {
	switch k {
	case PingInitial:
		return "INITIAL"
	case PingAlive:
		return "ALIVE"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON implements the json.Marshaler interface.
//
// PingKindUnknown is encoded as null.
func (k PingKind) MarshalJSON() ([]byte, error) {
	if k == PingKindUnknown {
		return []byte("null"), nil
	}
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (k *PingKind) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = PingKindUnknown
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: ping kind must be a string or null", ErrInvalidRecord)
	}
	*k = ParsePingKind(s)
	return nil
}

// Ping is a latency sample of a service.
type Ping struct {
	Namespace string `json:"namespace"`

	Service string `json:"service"`

	// Time is the unix time in seconds that the sample was taken.
	Time int64 `json:"time"`

	// MS is the measured latency in milliseconds.
	MS uint64 `json:"ms"`

	// Location is the name of the agent that took the sample.
	Location string `json:"location"`

	Kind PingKind `json:"kind"`
}
