package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/hamed0406/srvstatus/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// TCPChecker opens a TCP connection to the target and, for TLS targets,
// completes a handshake on it. Nothing is read or written; the connection
// is closed as soon as the outcome is known.
type TCPChecker struct {
	Timeout time.Duration
	// TLSConfig is nil in production so the platform defaults apply
	// (system roots, verification on, SNI taken from the host).
	TLSConfig *tls.Config
	Resolver  *net.Resolver
}

func NewTCPChecker(timeout time.Duration) *TCPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPChecker{Timeout: timeout}
}

func (c *TCPChecker) Check(ctx context.Context, t domain.Target) domain.ProbeResult {
	start := time.Now()
	res := domain.ProbeResult{Target: t, ObservedAt: start.UTC()}

	if !t.Mechanism.Known() {
		res.Status = domain.StatusDown
		res.Reason = ReasonUnsupported
		return res
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(cctx, t)
	res.Latency = time.Since(start)
	if err != nil {
		res.Status = domain.StatusDown
		res.Reason = c.reason(ctx, t, err)
		return res
	}
	_ = conn.Close()

	res.Status = domain.StatusUp
	res.Reason = ReasonConnected
	if t.Mechanism == domain.MechanismTLS {
		res.Reason = ReasonHandshakeOK
	}
	return res
}

func (c *TCPChecker) dial(ctx context.Context, t domain.Target) (net.Conn, error) {
	d := &net.Dialer{Resolver: c.Resolver}
	if t.Mechanism == domain.MechanismPlain {
		return d.DialContext(ctx, "tcp", t.Addr())
	}
	td := &tls.Dialer{NetDialer: d, Config: c.TLSConfig}
	return td.DialContext(ctx, "tcp", t.Addr())
}

// reason turns a dial error into a short classification. DNS failures get a
// second, independent lookup so the log says why the name did not resolve.
func (c *TCPChecker) reason(ctx context.Context, t domain.Target, err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		s := CheckDNS(ctx, c.Resolver, t.Host)
		return "dns: " + s.Class
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ReasonTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonRefused
	}
	if isHandshakeError(err) {
		return "tls handshake: " + err.Error()
	}
	return err.Error()
}

func isHandshakeError(err error) bool {
	var (
		verr    *tls.CertificateVerificationError
		hostErr x509.HostnameError
		authErr x509.UnknownAuthorityError
		certErr x509.CertificateInvalidError
		recErr  tls.RecordHeaderError
		alert   tls.AlertError
	)
	return errors.As(err, &verr) || errors.As(err, &hostErr) || errors.As(err, &authErr) ||
		errors.As(err, &certErr) || errors.As(err, &recErr) || errors.As(err, &alert)
}
