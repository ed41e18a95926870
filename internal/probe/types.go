package probe

import (
	"context"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// Checker performs a single reachability check for a target. Failures are
// reported through the returned result, never as an error.
type Checker interface {
	Check(ctx context.Context, t domain.Target) domain.ProbeResult
}

// Reasons attached to probe results.
const (
	ReasonConnected   = "connected"
	ReasonHandshakeOK = "tls handshake ok"
	ReasonTimeout     = "timeout"
	ReasonRefused     = "connection refused"
	ReasonUnsupported = "unsupported mechanism"
)
