// Package core contains the activation domain: purchase and activation
// entities, the plan table, code generation and the issuance service. Lower
// level adapters (webhooks, stores, email providers, HTTP) depend on this
// package; core does not depend on them.
package core
