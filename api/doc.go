// Package api exposes the session controller over HTTP using gin.
//
// Routes:
//
//	POST /chat                             combined start / poll / decide
//	POST /v1/threads                       start a thread
//	GET  /v1/threads                       list threads (?status=&limit=&offset=)
//	GET  /v1/threads/:threadId             poll a thread
//	POST /v1/threads/:threadId/decision    approve or reject the pending gate
//	GET  /v1/nodes                         registry in execution order
//	GET  /health                           liveness and store health
//
// Errors are returned as {"error": "..."} with a status derived from the
// waypoint sentinel errors.
package api
