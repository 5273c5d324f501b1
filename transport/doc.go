// Package transport provides the outbound REST client used by HTTP email
// providers.
package transport
