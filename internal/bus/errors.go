package bus

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRequestTimeout       = errors.New("request timed out")
	ErrSubscriptionConsumed = errors.New("subscription already consumed")
	ErrEmptyChannel         = errors.New("channel is required")
)

// RequestTimeoutError is returned when no response arrives in time.
type RequestTimeoutError struct {
	Channel string
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request on channel %q timed out after %s", e.Channel, e.Timeout)
}

func (e *RequestTimeoutError) Unwrap() error {
	return ErrRequestTimeout
}
