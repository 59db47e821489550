package erp

import "fmt"

// ProtocolError means the response did not have the shape the ERP dialect promises.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "erp protocol error: " + e.Reason
}

// UpstreamError is a business-level rejection signalled by a nonzero status code.
type UpstreamError struct {
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("erp error %d: %s", e.Code, e.Message)
}

// TransportError wraps network failures, timeouts and non-success HTTP statuses.
type TransportError struct {
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("erp transport timeout: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("erp transport: HTTP %d", e.StatusCode)
	default:
		return fmt.Sprintf("erp transport: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
