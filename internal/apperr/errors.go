package apperr

import "errors"

// Invalid is returned when an inbound payload fails shape validation.
var Invalid = errors.New("invalid input")

// Unsupported is returned for message types the service does not handle.
var Unsupported = errors.New("unsupported")
