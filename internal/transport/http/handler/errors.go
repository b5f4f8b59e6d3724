package handler

const (
	errInternalServer = "Internal server error"
	errUnavailable    = "Service temporarily unavailable"
	errInvalidBody    = "Request body must be a JSON object"
	errInvalidCode    = "invalid or expired code"
)
