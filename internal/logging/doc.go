// Package logging provides structured logging utilities for graphbridge.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (account anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "sharepoint.list_drives")
//	logger.Info("listing drives",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("account operation",
//	    logging.UserHash(accountID))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - Account names are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
