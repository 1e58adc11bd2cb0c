package ws

// ClientError is an error that belongs to the requesting connection: it is
// serialized into an "error" frame for that client and never broadcast.
// Everything else bubbling out of a handler is treated as an internal
// failure — logged with full context, surfaced to the requester as a
// generic message.
type ClientError struct {
	Code    string
	Message string
	cause   error
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.cause
}

// Error codes carried to the client. Authentication failures never reach
// this taxonomy — those are refused with HTTP 401 before the upgrade.
const (
	codeAuthorization = "forbidden"
	codeNotFound      = "not_found"
	codeValidation    = "invalid_payload"
	codeInternal      = "internal"
)

func errAuthorization(msg string) *ClientError {
	return &ClientError{Code: codeAuthorization, Message: msg}
}

func errNotFound(msg string) *ClientError {
	return &ClientError{Code: codeNotFound, Message: msg}
}

func errValidation(msg string) *ClientError {
	return &ClientError{Code: codeValidation, Message: msg}
}

// errInternal wraps an unexpected persistence failure. The cause is kept
// for the log line; the client only ever sees msg.
func errInternal(msg string, cause error) *ClientError {
	return &ClientError{Code: codeInternal, Message: msg, cause: cause}
}
