package scraper

import (
	"errors"
	"fmt"
)

// Err is the umbrella error every failure signaled by this package
// matches via errors.Is, for callers that only care that the problem
// was RosterOn-related. It is never returned directly.
var Err = errors.New("rosteron")

// Purpose is the kind of page an operation expects the portal to
// return. It tags BadResponseError and the session's exchange record.
type Purpose string

const (
	PurposeLogin  Purpose = "login"
	PurposeHome   Purpose = "home"
	PurposeRoster Purpose = "roster"
	PurposeLogout Purpose = "logout"
)

// BadResponseError reports a response that does not match the page
// shape the operation expected, or a transport-level failure. Cause
// holds the underlying transport or parse error when there is one.
type BadResponseError struct {
	Purpose Purpose
	Cause   error
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf(
		"RosterOn returned an unexpected response for an operation expecting %q",
		string(e.Purpose),
	)
}

func (e *BadResponseError) Unwrap() error { return e.Cause }

func (e *BadResponseError) Is(target error) bool { return target == Err }

// BadCredentialsError reports a login rejected specifically because of
// an unknown username or a bad password.
type BadCredentialsError struct {
	Username string
}

func (e *BadCredentialsError) Error() string {
	return fmt.Sprintf(
		"RosterOn rejected the login credentials for username %q",
		e.Username,
	)
}

func (e *BadCredentialsError) Is(target error) bool { return target == Err }

// NotLoggedInError reports a roster request the portal silently
// redirected back to the login page.
type NotLoggedInError struct{}

func (e *NotLoggedInError) Error() string {
	return "a RosterOn user must successfully log in before a roster can be retrieved"
}

func (e *NotLoggedInError) Is(target error) bool { return target == Err }
