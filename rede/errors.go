package rede

import "fmt"

// AuthError is a non-2xx response from the acquirer's token endpoint.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("rede auth error %d: %s", e.Status, e.Body)
}

// APIError is a non-2xx response from an acquirer data endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rede api error %d: %s", e.Status, e.Body)
}
