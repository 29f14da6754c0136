// Package tokenstore keeps the persisted copy of the admin bearer token:
// one opaque string under one well-known key. A missing record loads as
// an empty string with a nil error.
package tokenstore
