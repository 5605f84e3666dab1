// Package daemon is the typed callback-dispatch RPC substrate spec.md §9's
// Design Notes calls for in place of the source's eval-based messaging:
// each worker registers a name->handler map; a connection carries one
// gob-encoded request/response pair. Arbitrary code evaluation is never
// part of the contract. Transport framing (one message per connection,
// workers may interleave across connections) is grounded on ppb's
// cluster/message.go, generalized from its QUIC tunnel to a plain
// Unix-domain-socket net.Conn since cxxforge's workers are same-host
// (distributed compilation is out of scope per spec.md §1).
package daemon

import (
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cxxforge/cxxforge/internal/base"
)

var LogDaemon = base.NewLogCategory("Daemon")

// Envelope is the one message a connection carries in either direction.
type Envelope struct {
	Callback string
	Args     map[string]interface{}
	Result   map[string]interface{}
	Err      string
}

// Handler is a worker's named callback. It returns a result mapping with
// at minimum {"success": bool}, per spec.md §4.5.1's public contract.
type Handler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// Mux is a worker's name->handler registry.
type Mux struct {
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: map[string]Handler{}}
}

func (m *Mux) Register(name string, h Handler) {
	m.handlers[name] = h
}

// Serve listens on a Unix-domain socket at socketPath and dispatches each
// incoming connection's single Envelope to the registered handler. Workers
// handle messages sequentially per connection but interleave across
// concurrent connections (one goroutine per connection), per spec.md
// §4.5.1.
func Serve(ctx context.Context, socketPath string, mux *Mux) error {
	_ = os.Remove(socketPath) // stale socket from a prior crashed run

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", socketPath, err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	base.LogInfo(LogDaemon, "listening on %s", socketPath)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("daemon: accept: %w", err)
		}
		go handleConn(ctx, conn, mux)
	}
}

func handleConn(ctx context.Context, conn net.Conn, mux *Mux) {
	defer conn.Close()

	var req Envelope
	dec := gob.NewDecoder(conn)
	if err := dec.Decode(&req); err != nil {
		base.LogWarning(LogDaemon, "decode request: %v", err)
		return
	}

	handler, ok := mux.handlers[req.Callback]
	var resp Envelope
	if !ok {
		resp.Err = fmt.Sprintf("unknown callback %q", req.Callback)
	} else {
		result, err := handler(ctx, req.Args)
		if err != nil {
			resp.Err = err.Error()
		}
		resp.Result = result
	}

	enc := gob.NewEncoder(conn)
	if err := enc.Encode(&resp); err != nil {
		base.LogWarning(LogDaemon, "encode response for %q: %v", req.Callback, err)
	}
}

// Call dials socketPath, sends one Envelope for callback(args), and waits
// for the response — connection-oriented, one message per connection, per
// spec.md §6's worker RPC surface.
func Call(ctx context.Context, socketPath, callback string, args map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	dialer := net.Dialer{}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := gob.NewEncoder(conn).Encode(&Envelope{Callback: callback, Args: args}); err != nil {
		return nil, fmt.Errorf("daemon: encode request: %w", err)
	}

	var resp Envelope
	if err := gob.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("daemon: decode response: %w", err)
	}
	if resp.Err != "" {
		return resp.Result, fmt.Errorf("%s", resp.Err)
	}
	return resp.Result, nil
}

// Ping is the trivial no-op callback every worker registers so the
// orchestrator's check_daemons/preflight can probe liveness without
// triggering real work.
const Ping = "ping"

func RegisterPing(mux *Mux) {
	mux.Register(Ping, func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"success": true}, nil
	})
}

// IsAlive dials socketPath and calls Ping, returning false on any error
// (including "no such file" for a socket that was never created).
func IsAlive(ctx context.Context, socketPath string, timeout time.Duration) bool {
	_, err := Call(ctx, socketPath, Ping, nil, timeout)
	return err == nil
}
