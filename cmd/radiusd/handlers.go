package main

import (
	"context"
	"log/slog"

	"github.com/openradius/goradius/internal/radius"
)

const proxyStateType = 33

// newAccessHandler returns a reference Access-Request handler.
// Credential verification against a real user store is out of scope
// here — there is no user database in this module — so the handler
// classifies the authentication method, logs it, and always accepts.
// A deployment wires its own Handler in place of this one to consult
// a real credential backend.
func newAccessHandler(dict *radius.Dictionary, logger *slog.Logger) radius.Handler {
	return radius.HandlerFunc(func(_ context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
		method := radius.ClassifyAccessRequest(req.Request)
		logger.Debug("access-request",
			slog.String("client", req.Endpoint.Addr.String()),
			slog.String("method", method.String()),
		)

		resp := radius.New(radius.CodeAccessAccept, req.Request.Identifier, dict)
		return resp, true, nil
	})
}

// newAccountingHandler echoes any Proxy-State attributes from the
// request and replies Accounting-Response.
func newAccountingHandler(dict *radius.Dictionary) radius.Handler {
	return radius.HandlerFunc(func(_ context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
		proxyStates := radius.FindAll(req.Request.Attributes, proxyStateType)
		resp := radius.New(radius.CodeAccountingResponse, req.Request.Identifier, dict).WithAttributes(proxyStates...)
		return resp, true, nil
	})
}

// newCoAHandler acknowledges CoA-Request/Disconnect-Request packets.
// Applying the requested change (session disconnect, attribute
// change-of-authorization) against live session state requires a
// session store, which is out of scope; the handler only produces the
// protocol-correct ACK.
func newCoAHandler(dict *radius.Dictionary) radius.Handler {
	return radius.HandlerFunc(func(_ context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
		var ackCode radius.Code
		switch req.Request.Code {
		case radius.CodeCoARequest:
			ackCode = radius.CodeCoAACK
		case radius.CodeDisconnectRequest:
			ackCode = radius.CodeDisconnectACK
		default:
			ackCode = radius.CodeCoAACK
		}
		return radius.New(ackCode, req.Request.Identifier, dict), true, nil
	})
}
