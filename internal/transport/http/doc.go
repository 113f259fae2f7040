// Package http contains the HTTP handlers for the application shell:
// license status and activation, the guarded reporting endpoints and
// health probes. Handlers render errors as RFC 7807 problem documents
// via go-chi/render.
package http
