package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/protocol"
	"github.com/paulrobinshaw/rch-xcode/pkg/retry"
)

func reserveRequest() protocol.Request {
	return protocol.Request{ProtocolVersion: 1, Op: protocol.OpReserve, RequestID: "req-1"}
}

func TestCallSucceedsFirstTry(t *testing.T) {
	calls := 0
	transport := func(ctx context.Context, req protocol.Request) (protocol.Response, error) {
		calls++
		return protocol.NewResponse(1, req.RequestID, map[string]string{"lease_id": "L1"})
	}

	r := retry.New(retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	resp, err := Call(context.Background(), r, transport, reserveRequest())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !resp.Ok {
		t.Fatal("Call() response should be Ok")
	}
	if calls != 1 {
		t.Errorf("expected 1 transport call, got %d", calls)
	}
}

func TestCallRetriesOnBusyThenSucceeds(t *testing.T) {
	calls := 0
	transport := func(ctx context.Context, req protocol.Request) (protocol.Response, error) {
		calls++
		if calls < 3 {
			return protocol.NewErrorResponse(1, req.RequestID, protocol.NewBusyError("at capacity", 0)), nil
		}
		return protocol.NewResponse(1, req.RequestID, map[string]string{"lease_id": "L1"})
	}

	r := retry.New(retry.Config{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	resp, err := Call(context.Background(), r, transport, reserveRequest())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !resp.Ok {
		t.Fatal("Call() response should be Ok after retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 transport calls, got %d", calls)
	}
}

func TestCallExhaustsRetriesOnPersistentBusy(t *testing.T) {
	transport := func(ctx context.Context, req protocol.Request) (protocol.Response, error) {
		return protocol.NewErrorResponse(1, req.RequestID, protocol.NewBusyError("at capacity", 0)), nil
	}

	r := retry.New(retry.Config{MaxAttempts: 2, InitialBackoff: time.Millisecond})
	_, err := Call(context.Background(), r, transport, reserveRequest())
	if !errors.Is(err, retry.ErrExhausted) {
		t.Errorf("Call() error = %v, want retry.ErrExhausted", err)
	}
}

func TestCallDoesNotRetryLeaseExpired(t *testing.T) {
	calls := 0
	transport := func(ctx context.Context, req protocol.Request) (protocol.Response, error) {
		calls++
		return protocol.NewErrorResponse(1, req.RequestID, protocol.NewError(protocol.ErrCodeLeaseExpired, "lease gone")), nil
	}

	r := retry.New(retry.Config{MaxAttempts: 5, InitialBackoff: time.Millisecond})
	_, err := Call(context.Background(), r, transport, reserveRequest())

	var leaseErr *ErrLeaseExpired
	if !errors.As(err, &leaseErr) {
		t.Fatalf("Call() error = %v, want *ErrLeaseExpired", err)
	}
	if leaseErr.Code != protocol.ErrCodeLeaseExpired {
		t.Errorf("ErrLeaseExpired.Code = %v, want %v", leaseErr.Code, protocol.ErrCodeLeaseExpired)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 transport call for a non-retryable error, got %d", calls)
	}
}

func TestCallDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	transport := func(ctx context.Context, req protocol.Request) (protocol.Response, error) {
		calls++
		return protocol.NewErrorResponse(1, req.RequestID, protocol.NewError(protocol.ErrCodeJobKeyMismatch, "mismatch")), nil
	}

	r := retry.New(retry.Config{MaxAttempts: 5, InitialBackoff: time.Millisecond})
	_, err := Call(context.Background(), r, transport, reserveRequest())
	if err == nil {
		t.Fatal("Call() should return an error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 transport call, got %d", calls)
	}
}

func TestCallPropagatesTransportError(t *testing.T) {
	wantErr := errors.New("connection refused")
	transport := func(ctx context.Context, req protocol.Request) (protocol.Response, error) {
		return protocol.Response{}, wantErr
	}

	r := retry.New(retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	_, err := Call(context.Background(), r, transport, reserveRequest())
	if !errors.Is(err, wantErr) {
		t.Errorf("Call() error = %v, want %v", err, wantErr)
	}
}
