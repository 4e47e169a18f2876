// Package api serves a remote.Remote over HTTP.
//
// Routes, relative to the base path (default /v1):
//
//	GET    /health
//	GET    /collections/{collection}/rows
//	POST   /collections/{collection}/rows          (auth)
//	DELETE /collections/{collection}/rows/{key}    (auth)
//	GET    /collections/{collection}/changes       WebSocket change feed
//	GET    /search?q=
//	POST   /uploads                                (auth, multipart)
//
// plus /metrics and the OpenAPI document at /openapi. Errors use the
// envelope {"error": {"code": ..., "message": ...}}.
package api
