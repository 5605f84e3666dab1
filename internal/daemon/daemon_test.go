package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T, mux *Mux) (socketPath string, stop func()) {
	t.Helper()
	dir := t.TempDir()
	socketPath = filepath.Join(dir, "worker.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Serve(ctx, socketPath, mux)
	}()

	// give the listener a moment to bind before the first dial.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if IsAlive(context.Background(), socketPath, 50*time.Millisecond) {
			break
		}
		if mux.handlers[Ping] == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return socketPath, func() {
		cancel()
		<-done
	}
}

func TestCallRoundTripsResult(t *testing.T) {
	mux := NewMux()
	mux.Register("echo", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"echoed": args["value"]}, nil
	})
	RegisterPing(mux)

	socketPath, stop := startTestServer(t, mux)
	defer stop()

	result, err := Call(context.Background(), socketPath, "echo", map[string]interface{}{"value": "hi"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if result["echoed"] != "hi" {
		t.Fatalf("expected echoed=hi, got %v", result)
	}
}

func TestCallUnknownCallbackReturnsError(t *testing.T) {
	mux := NewMux()
	RegisterPing(mux)
	socketPath, stop := startTestServer(t, mux)
	defer stop()

	_, err := Call(context.Background(), socketPath, "does_not_exist", nil, time.Second)
	if err == nil {
		t.Fatal("expected an error for an unregistered callback")
	}
}

func TestCallHandlerErrorIsPropagated(t *testing.T) {
	mux := NewMux()
	mux.Register("always_fails", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return nil, errFixture
	})
	RegisterPing(mux)
	socketPath, stop := startTestServer(t, mux)
	defer stop()

	_, err := Call(context.Background(), socketPath, "always_fails", nil, time.Second)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
}

func TestIsAliveFalseWhenNoSocket(t *testing.T) {
	if IsAlive(context.Background(), "/tmp/cxxforge-does-not-exist.sock", 50*time.Millisecond) {
		t.Fatal("expected IsAlive to be false for a nonexistent socket")
	}
}

var errFixture = fixtureError("handler failure")

type fixtureError string

func (e fixtureError) Error() string { return string(e) }
