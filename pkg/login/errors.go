package login

import "fmt"

// Code tags every failure that crosses the local channel. The set is closed:
// UI layers switch on it rather than inspecting error strings.
type Code string

const (
	// CodeConfiguration marks fatal setup problems (bad service URL, missing
	// signing key on the backend).
	CodeConfiguration Code = "configuration"
	// CodeValidation marks malformed local state, recovered by discarding it.
	CodeValidation Code = "validation"
	// CodeNetwork marks transport failures during login or polling. Retryable.
	CodeNetwork Code = "network"
	// CodeExpired marks a device flow that ran out of time. The user must
	// restart login.
	CodeExpired Code = "device_flow_expired"
	// CodeDenied marks a device flow the user explicitly refused.
	CodeDenied Code = "device_flow_denied"
)

// FlowError is the structured error carried across the local channel.
type FlowError struct {
	Code      Code
	Message   string
	Retryable bool
	cause     error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.cause
}

func networkError(message string, cause error) *FlowError {
	return &FlowError{Code: CodeNetwork, Message: message, Retryable: true, cause: cause}
}

func expiredError() *FlowError {
	return &FlowError{Code: CodeExpired, Message: "device flow expired, restart login to try again"}
}

func deniedError() *FlowError {
	return &FlowError{Code: CodeDenied, Message: "access was denied"}
}

func validationError(message string) *FlowError {
	return &FlowError{Code: CodeValidation, Message: message}
}
