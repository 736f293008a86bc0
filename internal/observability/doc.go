// Package observability builds the zap logger shared by every layer of the
// authentication API.
package observability
