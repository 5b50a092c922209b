package apps

// ArgumentError marks bad command-line input so callers can tell a usage
// mistake from a runtime failure.
type ArgumentError struct {
	msg string
}

func NewArgumentError(msg string) *ArgumentError {
	return &ArgumentError{msg: msg}
}

func (err *ArgumentError) Error() string {
	return err.msg
}
