package domain

import "errors"

var ErrNotAuthenticated = errors.New("no principal is signed in")
var ErrUserNotFound = errors.New("user not found")
var ErrTaskNotFound = errors.New("task not found")
var ErrClientNotFound = errors.New("client not found")

// Popup / external-authorization errors, synthesized locally and distinct
// from transport errors.
var ErrPopupBlocked = errors.New("authorization window could not be opened")
var ErrAuthorizationCancelled = errors.New("authorization window was closed before a code was issued")
var ErrAuthorizationTimeout = errors.New("authorization window polling exceeded the configured wait")

// ErrSuperseded marks the result of a fetch that lost the stale-request race:
// a newer fetch was issued before this one resolved. The data was discarded;
// callers may treat the error as advisory.
var ErrSuperseded = errors.New("fetch superseded by a newer request")
