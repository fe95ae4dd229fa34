package types

// SuccessEnvelope wraps every successful JSON response. NewCSRFToken is set
// when the session was rotated while serving the request.
type SuccessEnvelope struct {
	Data         any    `json:"data"`
	NewCSRFToken string `json:"newCsrfToken,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
