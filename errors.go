package authguard

import "errors"

var (
	// ErrSessionAbsent means there is no session token to work with.
	ErrSessionAbsent = errors.New("authguard: session absent")

	// ErrRefreshRejected means the identity service answered the refresh
	// with "status": false.
	ErrRefreshRejected = errors.New("authguard: refresh rejected")

	// ErrTransportFailure covers every refresh outcome that is neither a
	// rejection nor a usable session: network errors, timeouts, unreadable
	// bodies and error statuses without a rejection payload.
	ErrTransportFailure = errors.New("authguard: refresh transport failure")
)

const (
	codeRefreshRejected  = "refresh_rejected"
	codeRefreshTransport = "refresh_transport"
)
