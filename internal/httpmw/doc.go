// Package httpmw provides HTTP middleware for the public-facing server.
//
// httpserver.NewHandler composes it outermost first: recovery, request ID,
// client IP resolution, OTEL tracing, trace response headers, metrics,
// request-scoped logging, then the chi router with route annotation and
// the access log. Rate limiting is mounted per route, on /readyz only.
//
// User-supplied data (query params, user-agent, headers) is kept out of logs.
package httpmw
