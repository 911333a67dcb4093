package homeconnect

import (
	"errors"
	"fmt"
)

// Sentinel errors for the API error taxonomy. Callers classify with
// errors.Is; APIError carries the raw status and body for logging.
var (
	// ErrNoActiveProgram: 404 on the active-program resource. Expected
	// condition, not a failure.
	ErrNoActiveProgram = errors.New("no program active")
	// ErrUnauthorized: 401 that survived the one-shot token refresh.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict: 409, command rejected by the current appliance state.
	ErrConflict = errors.New("command conflicts with appliance state")
	// ErrRateLimited: 429 or a mutating call refused during cooldown.
	ErrRateLimited = errors.New("api rate limit exceeded")
	// ErrApplianceOffline: 503, appliance temporarily unreachable.
	ErrApplianceOffline = errors.New("appliance offline")
	// ErrNoToken: the token provider could not supply a token.
	ErrNoToken = errors.New("no auth token available")
)

// APIError is a non-2xx response from the vendor API.
type APIError struct {
	StatusCode int
	Key        string
	Descr      string
	Body       string
}

func (e *APIError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Key, e.Descr)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 401:
		return ErrUnauthorized
	case 409:
		return ErrConflict
	case 429:
		return ErrRateLimited
	case 503:
		return ErrApplianceOffline
	default:
		return nil
	}
}
