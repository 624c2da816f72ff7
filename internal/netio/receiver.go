package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openradius/goradius/internal/radius"
)

// ErrNoListeners indicates that Run was called without any listeners.
var ErrNoListeners = errors.New("receiver run: no listeners provided")

// Receiver reads datagrams from one or more Listeners and hands them to a
// radius.Server's ServeDatagram pipeline.
type Receiver struct {
	server *radius.Server
	logger *slog.Logger
}

// NewReceiver creates a Receiver that dispatches datagrams to server.
func NewReceiver(server *radius.Server, logger *slog.Logger) *Receiver {
	return &Receiver{
		server: server,
		logger: logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from all listeners concurrently until ctx is cancelled. Each
// listener gets its own goroutine. Run blocks until all listener
// goroutines complete (i.e., until ctx is cancelled and all reads
// return).
//
// Errors from individual packet reads are logged but do not stop the
// receiver. Only context cancellation terminates the loop.
func (r *Receiver) Run(ctx context.Context, listeners ...*Listener) error {
	if len(listeners) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(listeners))

	for _, ln := range listeners {
		go func(l *Listener) {
			r.recvLoop(ctx, l)
			done <- struct{}{}
		}(ln)
	}

	// Wait for all goroutines to finish.
	for range len(listeners) {
		<-done
	}

	return nil
}

// recvLoop reads datagrams from a single Listener in a loop until ctx is
// cancelled. Each datagram is handed to the server pipeline. Errors from
// individual reads are logged but do not stop the loop; only context
// cancellation terminates it.
func (r *Receiver) recvLoop(ctx context.Context, ln *Listener) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(ctx, ln); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("recv error", slog.String("error", err.Error()))
		}
	}
}

// recvOne performs a single receive-dispatch cycle using a pooled buffer
// from Listener.Recv. The datagram is copied into a request-sized slice
// and the buffer is returned to the pool before ServeDatagram runs,
// regardless of outcome.
func (r *Receiver) recvOne(ctx context.Context, ln *Listener) error {
	raw, addr, err := ln.Recv(ctx)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}

	wire := make([]byte, len(raw))
	copy(wire, raw)
	ReleasePacketBuffer(raw)

	if err := r.server.ServeDatagram(ctx, wire, addr); err != nil {
		r.logger.Warn("serve datagram failed",
			slog.String("src", addr.String()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
