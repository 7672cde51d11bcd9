package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/marketreplay/go-tick-fetch/models"
	"github.com/marketreplay/go-tick-fetch/preclose"
)

// ErrConnect indicates a server was unreachable or failed mid-session.
// Triggers failover to the next candidate within the same attempt.
type ErrConnect struct {
	Server models.Server
	Err    error
}

func (e *ErrConnect) Error() string {
	return fmt.Sprintf("connect %s:%d: %v", e.Server.Host, e.Server.Port, e.Err)
}

func (e *ErrConnect) Unwrap() error {
	return e.Err
}

// ErrProtocol indicates the transient-failure sentinel was observed
// mid-pagination. The attempt is aborted; it must never be read as
// end of data.
type ErrProtocol struct {
	Offset int
}

func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("transient protocol error at offset %d", e.Offset)
}

// errorTypeLabel buckets an attempt error for metrics and diagnostics.
func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var protocol *ErrProtocol
	if errors.As(err, &protocol) {
		return "protocol"
	}
	var connect *ErrConnect
	if errors.As(err, &connect) {
		return "connection"
	}
	var invalid *preclose.InvalidValueError
	if errors.As(err, &invalid) {
		return "invalid_value"
	}
	return "other"
}
