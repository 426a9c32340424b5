/* errors.go
 * Contains the validation errors returned by the draft transitions
 * Authors: Zachary Bower
 */

package logic

import "errors"

var (
	ErrWrongState       = errors.New("operation is not valid in the current draft state")
	ErrCapacityExceeded = errors.New("queue is full")
	ErrNotYourTurn      = errors.New("it is not your turn to pick")
	ErrNotAvailable     = errors.New("player is not available to pick")
	ErrAlreadyAssigned  = errors.New("player is already on a team")
	ErrTeamFull         = errors.New("team is full")
	ErrWrongTurn        = errors.New("it is not your turn to ban")
	ErrInvalidMap       = errors.New("map is not in the pool or is already banned")
	ErrUnauthorized     = errors.New("only team leaders can do that")
	ErrInvalidPlayer    = errors.New("player id is required")

	// ErrTooEarly is returned by SelectLeaders before the leader selection deadline. It is not a validation error,
	// the caller should try again later
	ErrTooEarly = errors.New("leader selection deadline has not passed")
)

var validationErrors = []error{
	ErrWrongState,
	ErrCapacityExceeded,
	ErrNotYourTurn,
	ErrNotAvailable,
	ErrAlreadyAssigned,
	ErrTeamFull,
	ErrWrongTurn,
	ErrInvalidMap,
	ErrUnauthorized,
	ErrInvalidPlayer,
}

// IsValidation reports whether err was caused by the caller's input. These are not retryable as-is
func IsValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
