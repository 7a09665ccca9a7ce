// Package services holds the error contract the application services share
// with the transport layer.
package services

// InvalidInputError is a client-correctable rejection. Its message is safe
// to return to the caller verbatim; any other unrecognized error reaching
// the transport layer is an internal failure and must not leak its detail.
type InvalidInputError string

func (e InvalidInputError) Error() string { return string(e) }

// InvalidInput builds an InvalidInputError from a plain message.
func InvalidInput(msg string) error { return InvalidInputError(msg) }
