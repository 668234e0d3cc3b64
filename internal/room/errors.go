package room

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("room not found")
	ErrAllocationExhausted    = errors.New("room code allocation exhausted")
	ErrStoreUnavailable       = errors.New("room store unavailable")
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	ErrForbidden              = errors.New("forbidden")
	ErrUnknownGameType        = errors.New("unknown game type")
	ErrRoomFull               = errors.New("room is full")
	ErrInvalidMutation        = errors.New("invalid mutation")
	ErrNoSession              = errors.New("no valid session")

	// ErrCodeTaken is returned by Store.Create when the code is in use.
	ErrCodeTaken = errors.New("room code taken")
)

// unavailable wraps a backend failure. Errors that already carry a domain
// sentinel pass through untouched.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrCodeTaken, ErrNoSession, ErrStoreUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
