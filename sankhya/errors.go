package sankhya

import "fmt"

// AuthError is a non-2xx response from the ERP's authenticate endpoint.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("sankhya auth error %d: %s", e.Status, e.Body)
}

// APIError is a gateway call that failed at the HTTP level or returned a
// service status outside the accepted set.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sankhya api error %d: %s", e.Status, e.Body)
}
