// Package middleware holds the HTTP middleware applied by the merchantd
// router: request ids, request logging, panic recovery, and the export
// rate limit.
package middleware
