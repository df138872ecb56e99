package domain

import "fmt"

// HTTPError is a transport-level failure: the server replied with a status
// outside the success range. Message carries the server's human-readable
// explanation when one could be parsed; FieldErrors carries per-field
// validation messages when the payload included them.
type HTTPError struct {
	Status      int
	Message     string
	FieldErrors map[string][]string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP Error! Status: %d", e.Status)
}
