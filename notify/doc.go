// Package notify renders and delivers activation emails through SendGrid,
// EmailJS or a local outbox file.
package notify
