// Package logging configures log/slog for hapticd.
//
// Every record carries service=haptics and the build version. Packages
// that log accept a small Logger interface rather than this type, so
// *logging.Logger is passed in at wiring time and tests can pass nothing.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	registry.SetLogger(log.Component("registry"))
//	log.Warn("malformed address", "error", msg)
//
// Tokens and the JWT secret must never be logged; log the token subject.
package logging
