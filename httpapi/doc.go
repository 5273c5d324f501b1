// Package httpapi serves the processor webhook endpoint and a health check
// over gin.
package httpapi
