// Package api provides the HTTP REST API and WebSocket server for
// gatekeeper core.
//
// Routes live under /api and answer with a JSON envelope:
//
//	{"success": true, "gate_status": "open", ...}
//	{"success": false, "error": "gate not found", "code": "not_found"}
//
// Domain errors map to HTTP status codes in errors.go. When JWT is enabled
// every route except /api/health, /api/auth/login and /metrics needs a
// bearer token, and gate commands are attributed to the token's operator.
//
// The server follows the same lifecycle as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
