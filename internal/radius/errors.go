package radius

import "errors"

// Sentinel errors for the RADIUS protocol stack. Each corresponds to one
// of the error kinds the pipeline must distinguish when deciding whether
// to log, drop, retry, or surface a failure to a caller.
var (
	// ErrMalformedPacket indicates a header length mismatch, an
	// attribute TLV overrun, or a bad declared length.
	ErrMalformedPacket = errors.New("radius: malformed packet")

	// ErrAuthenticatorInvalid indicates a response or accounting
	// authenticator did not match the recomputed value.
	ErrAuthenticatorInvalid = errors.New("radius: authenticator invalid")

	// ErrUnknownSecret indicates the SecretProvider returned no secret
	// for a remote endpoint.
	ErrUnknownSecret = errors.New("radius: unknown shared secret")

	// ErrUnknownAttributeName indicates a dictionary lookup by name
	// failed during programmatic attribute construction.
	ErrUnknownAttributeName = errors.New("radius: unknown attribute name")

	// ErrUnsupportedAuth indicates an EAP/MS-CHAPv2/ARAP encode or
	// verify operation was requested; these are structure-only.
	ErrUnsupportedAuth = errors.New("radius: unsupported auth mechanism")

	// ErrTimeout indicates client retry attempts were exhausted, or a
	// server handler exceeded its per-packet budget.
	ErrTimeout = errors.New("radius: timeout")

	// ErrCorrelationMiss indicates an inbound datagram matched no
	// outstanding request.
	ErrCorrelationMiss = errors.New("radius: no matching outstanding request")

	// ErrIO wraps a socket error bubbled up unchanged from the
	// transport layer.
	ErrIO = errors.New("radius: io error")

	// ErrDictionaryLoad indicates a malformed dictionary source line.
	ErrDictionaryLoad = errors.New("radius: dictionary load error")

	// ErrNoUpstream indicates the proxy policy produced no candidate
	// upstream endpoint for a request.
	ErrNoUpstream = errors.New("radius: no upstream endpoint")

	// ErrIdentifierCollision indicates Strategy A could not allocate a
	// free (remote, identifier) key; Send rejects rather than blocking
	// or evicting the existing entry.
	ErrIdentifierCollision = errors.New("radius: identifier collision")

	// ErrClosed indicates an operation was attempted on a client,
	// server, or correlator entry that has already been closed.
	ErrClosed = errors.New("radius: closed")
)
