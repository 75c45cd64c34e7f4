package models

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string
	Error   string
}

// SocketError is the payload of the "error" event emitted back to the
// originating socket connection when an event handler fails.
type SocketError struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
