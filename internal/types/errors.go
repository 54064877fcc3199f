package types

import "fmt"

// UnsupportedKindError indicates a kind, selector or upstream endpoint outside
// the closed enumeration. It is a configuration error and is never retried.
type UnsupportedKindError struct {
	Value string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported kind: %q", e.Value)
}

// EmailTakenError indicates an account with the email already exists.
type EmailTakenError struct {
	Email string
}

func (e *EmailTakenError) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}
