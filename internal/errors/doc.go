// Package errors defines error types for the transactor.
//
// This package provides sentinel errors for lifecycle conditions and
// structured error types for transport, protocol, and handler failures.
// All error types support unwrapping and can be checked using errors.Is,
// errors.As, and errors.AsType.
package errors
