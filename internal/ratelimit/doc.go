// Package ratelimit guards the readiness endpoint with a per-client token
// bucket.
//
// Every /readyz request opens fresh connections to the datastore and the
// broker, so an unthrottled caller can turn the endpoint into a connection
// flood against both. The limiter is in-memory and per-instance; it bounds
// what one client can cost, not what a distributed caller can.
package ratelimit
