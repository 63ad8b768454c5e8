package host

import (
	"context"
	"fmt"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
	"github.com/paulrobinshaw/rch-xcode/pkg/protocol"
	"github.com/paulrobinshaw/rch-xcode/pkg/retry"
)

var rpcLog = logger.New("rch:host:rpc")

// Transport sends one RPC request to the Worker and returns its response.
// The Host never dials SSH itself; whatever drives the forced-command
// invocation (or a future long-lived connection) supplies this function.
type Transport func(ctx context.Context, req protocol.Request) (protocol.Response, error)

// ErrLeaseExpired is returned by Call when the Worker reports LeaseExpired
// or SourceMissing: per the Host's retry policy these need fresh
// re-preparation (a new lease, a re-uploaded bundle), not a blind retry.
type ErrLeaseExpired struct {
	Code   protocol.ErrorCode
	Detail string
}

func (e *ErrLeaseExpired) Error() string {
	return fmt.Sprintf("%s: %s (needs re-preparation, not retry)", e.Code, e.Detail)
}

// Call issues req through transport, retrying on Busy with retry.Retrier's
// bounded backoff schedule, honouring the Worker's retry_after_seconds
// when it supplied one. LeaseExpired and SourceMissing are never retried
// here; they're returned as *ErrLeaseExpired so the caller can re-prepare
// (renew the lease, re-upload the bundle) before calling again. Every
// other error, and the final response, is returned as-is.
func Call(ctx context.Context, r *retry.Retrier, transport Transport, req protocol.Request) (protocol.Response, error) {
	var resp protocol.Response

	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = transport(ctx, req)
		if err != nil {
			return err
		}
		if resp.Ok || resp.Error == nil {
			return nil
		}

		switch resp.Error.Code {
		case protocol.ErrCodeBusy:
			wait := time.Duration(0)
			if resp.Error.RetryAfterSeconds != nil {
				wait = time.Duration(*resp.Error.RetryAfterSeconds) * time.Second
			}
			rpcLog.Printf("worker busy on %s, retry_after=%v", req.Op, wait)
			return &retry.RetryableError{
				Err:        fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Detail),
				RetryAfter: wait,
			}
		case protocol.ErrCodeLeaseExpired, protocol.ErrCodeSourceMissing:
			return &ErrLeaseExpired{Code: resp.Error.Code, Detail: resp.Error.Detail}
		default:
			return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Detail)
		}
	})
	if err != nil {
		return resp, err
	}
	return resp, nil
}
