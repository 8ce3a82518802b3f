// Package api contains the HTTP handlers for the slidecast REST API:
// account signup and signin, presentation session lifecycle, and slide
// uploads. Handlers are wired into a mux by the server package and rely on
// middleware to populate the authenticated identity in the request context.
package api
