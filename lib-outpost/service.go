package outpost

import (
	"fmt"
)

// ServiceKey is the identity of a watched service.
// The pair of Namespace and ID is unique in the backend.
type ServiceKey struct {
	Namespace string
	ID        string
}

// String returns "namespace/id" style representation of the key.
func (k ServiceKey) String() string {
	return fmt.Sprintf("%s/%s", k.Namespace, k.ID)
}

// Service is a watched service that fetched from the backend.
type Service struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	URL       string `json:"url"`
	Method    string `json:"method"`

	// Timeout is the timeout of a single request in seconds.
	Timeout uint8 `json:"timeout"`

	// Status is the HTTP status code that considered as healthy.
	Status int `json:"status"`
}

// Key returns the identity of this service.
func (s Service) Key() ServiceKey {
	return ServiceKey{Namespace: s.Namespace, ID: s.ID}
}
