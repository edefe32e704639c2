// Package api handles incoming HTTP requests for the verification engine:
// routing, request validation and response formatting. Handlers translate
// HTTP concerns into calls on the verification, selector, quality and
// assignment services, and map their typed errors to status codes with
// sanitized messages.
//
// Learner-facing question payloads never include option correctness or the
// correct index.
package api
