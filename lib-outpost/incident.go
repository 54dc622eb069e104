package outpost

// Incident is a period of outage of a service.
type Incident struct {
	// ID is assigned by the backend.
	// It is nil if the incident is newly detected by this agent.
	ID *uint64 `json:"id"`

	Namespace string `json:"namespace"`

	Service string `json:"service"`

	// Start is the unix time in seconds that the outage was detected.
	Start int64 `json:"start"`

	// End is the unix time in seconds that the service back to healthy.
	// It is nil while the incident is still open.
	End *int64 `json:"end"`
}

// Key returns the identity of the service that caused this incident.
func (i Incident) Key() ServiceKey {
	return ServiceKey{Namespace: i.Namespace, ID: i.Service}
}

// IsOpen reports whether the incident is still continued or not.
func (i Incident) IsOpen() bool {
	return i.End == nil
}
