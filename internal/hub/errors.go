package hub

// Machine-readable error codes surfaced on the `error` event so clients can
// distinguish "back off" from "fix your input".
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeValidation      = "VALIDATION_FAILED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL"
)

// EventError is a per-event failure delivered back to the offending
// connection. It never terminates the connection.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *EventError) Error() string {
	return e.Code + ": " + e.Message
}

func errValidation(msg string) *EventError {
	return &EventError{Code: CodeValidation, Message: msg}
}

func errRateLimited() *EventError {
	return &EventError{Code: CodeRateLimited, Message: "message rate limit exceeded, slow down"}
}

func errAccessDenied() *EventError {
	// Deliberately generic: no leak of room existence or metadata.
	return &EventError{Code: CodeAccessDenied, Message: "not allowed"}
}

func errNotFound(msg string) *EventError {
	return &EventError{Code: CodeNotFound, Message: msg}
}

func errInternal() *EventError {
	return &EventError{Code: CodeInternal, Message: "something went wrong"}
}
