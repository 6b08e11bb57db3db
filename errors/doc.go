// Package errors provides standardized error handling patterns for sensorrelay components.
//
// # Overview
//
// The package implements a three-class error classification: Transient (temporary,
// retryable), Invalid (bad input or configuration, do not retry) and Fatal
// (unrecoverable, stop). The relay uses the class to decide what a failure means:
//
//   - Sensor dial and read failures are Transient; the session logs them and retries
//     after its fixed interval.
//   - A configuration document that fails validation is Invalid; at startup this stops
//     the process, during a hot reload the previous configuration is kept.
//   - A configuration file that cannot be read at startup is Fatal.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions set the classification:
//
//	errors.WrapTransient(err, "Session", "connect", "dial sensor")
//	errors.WrapInvalid(err, "Config", "Validate", "schema validation")
//	errors.WrapFatal(err, "Loader", "LoadFile", "read file")
//
// The generic Wrap() preserves whatever classification the wrapped error carries.
//
// # Classification of unclassified errors
//
// Errors that were never wrapped are classified by type (io.EOF, net.Error, context
// errors are transient), by sentinel (ErrMissingConfig is fatal, ErrInvalidData is
// invalid) and finally by message patterns. Unknown errors default to transient.
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    logger.Warn("operation failed", "component", ce.Component, "class", ce.Class)
//	}
//
// Is, As and New are re-exported so that packages importing this one do not need to
// alias the standard library errors package.
package errors
