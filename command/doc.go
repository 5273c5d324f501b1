// Package command exposes the activation mutations as go-command commanders so
// inbound handlers and background workers run them through one surface.
package command
