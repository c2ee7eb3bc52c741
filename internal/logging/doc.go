// Package logging provides structured logging utilities for the inboxtriage
// application.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (sender anonymization)
//   - Consistent attribute naming across the pipeline stages
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithStage(slog.Default(), logging.StageClassify)
//	logger.Info("classified message",
//	    logging.MessageID(id),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("processing message",
//	    logging.SenderHash(msg.Sender))
//
// # Security Considerations
//
//   - Sender addresses are hashed to prevent PII leakage while allowing
//     correlation across a processing cycle
//   - Tokens are never logged directly
package logging
