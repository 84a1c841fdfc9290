// Package api implements the HTTP REST API and WebSocket server for hapticd.
//
// This package provides:
//   - Device snapshot and address dry-run endpoints
//   - Pattern library management (CSV upload, list, delete)
//   - Playback start/stop, recorded to the playback history
//   - WebSocket event stream (address.error, playback.started,
//     playback.stopped, devices.updated)
//   - Prometheus metrics and a health summary
//
// # Security
//
// Every route except /health, /metrics and /ws requires an HS256 bearer
// token signed with security.jwt.secret. hapticd keeps no user accounts;
// tokens are minted with IssueToken. WebSocket clients first obtain a
// single-use ticket from POST /auth/ws-ticket and pass it as ?ticket=.
package api
