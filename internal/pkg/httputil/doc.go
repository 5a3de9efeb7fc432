// Package httputil holds the JSON response and request helpers shared by the
// API handlers, so every endpoint uses the same envelope for errors.
package httputil
