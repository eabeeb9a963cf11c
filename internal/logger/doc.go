// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level parsing for the --log-level flag,
//   - convenience functions (Infof, WarnKV, etc.).
//
// Every release step accepts a context and logs through the logger stored in
// it, so package and publish runs carry their channel and version as fields.
package logger
