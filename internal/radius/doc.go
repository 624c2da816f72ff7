// Package radius implements the core RADIUS protocol (RFC 2865, RFC 2866,
// RFC 2868, RFC 2869, RFC 5904).
//
// This includes the attribute dictionary, the attribute and packet codecs,
// the cryptographic authenticators, request/response correlation, the
// client retry state machine, and the server/proxy pipeline.
package radius
