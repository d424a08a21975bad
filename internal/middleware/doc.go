// Package middleware provides the HTTP middleware chain of the streambox
// service: request logging in W3C Extended Log Format, Prometheus request
// metrics keyed by route template, and gzip for playlists and JSON.
package middleware
