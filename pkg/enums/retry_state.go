package enums

import "fmt"

// RetryState tracks consecutive charge failures on a subscription.
type RetryState string

const (
	RetryStateNone      RetryState = "none"
	RetryStateRetrying  RetryState = "retrying"
	RetryStateExhausted RetryState = "exhausted"
)

var validRetryStates = []RetryState{RetryStateNone, RetryStateRetrying, RetryStateExhausted}

func (r RetryState) String() string {
	return string(r)
}

func (r RetryState) IsValid() bool {
	for _, candidate := range validRetryStates {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseRetryState(value string) (RetryState, error) {
	for _, candidate := range validRetryStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid retry state %q", value)
}
