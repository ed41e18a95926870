package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// fakeRelay is a minimal SMTP server: EHLO, STARTTLS (when tlsConfig is
// set), AUTH PLAIN, MAIL, RCPT, DATA, RSET and QUIT.
type fakeRelay struct {
	ln         net.Listener
	failAuth   bool
	rejectRcpt map[string]bool
	tlsConfig  *tls.Config
	dataDelay  time.Duration

	mu        sync.Mutex
	authed    bool
	authedTLS bool
	quit      bool
	messages  map[string]string
}

// newFakeRelay applies opts before the relay accepts its first connection.
func newFakeRelay(t *testing.T, opts ...func(*fakeRelay)) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeRelay{ln: ln, rejectRcpt: map[string]bool{}, messages: map[string]string{}}
	for _, o := range opts {
		o(f)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go f.handle(c)
		}
	}()
	return f
}

func (f *fakeRelay) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

func (f *fakeRelay) handle(c net.Conn) {
	defer c.Close()
	tp := textproto.NewConn(c)
	_ = tp.PrintfLine("220 fake ESMTP")

	var (
		rcpt     string
		upgraded bool
	)
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			_ = tp.PrintfLine("250-fake")
			if f.tlsConfig != nil && !upgraded {
				_ = tp.PrintfLine("250-STARTTLS")
			}
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case cmd == "STARTTLS" && f.tlsConfig != nil && !upgraded:
			_ = tp.PrintfLine("220 ready")
			tc := tls.Server(c, f.tlsConfig)
			if err := tc.Handshake(); err != nil {
				return
			}
			tp = textproto.NewConn(tc)
			upgraded = true
		case strings.HasPrefix(cmd, "AUTH"):
			if f.failAuth {
				_ = tp.PrintfLine("535 authentication failed")
				continue
			}
			f.mu.Lock()
			f.authed = true
			f.authedTLS = upgraded
			f.mu.Unlock()
			_ = tp.PrintfLine("235 ok")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			rcpt = ""
			_ = tp.PrintfLine("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			addr := strings.Trim(line[len("RCPT TO:"):], "<> ")
			if f.rejectRcpt[addr] {
				_ = tp.PrintfLine("550 no such user")
				continue
			}
			rcpt = addr
			_ = tp.PrintfLine("250 ok")
		case cmd == "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			f.mu.Lock()
			f.messages[rcpt] = string(data)
			f.mu.Unlock()
			time.Sleep(f.dataDelay)
			_ = tp.PrintfLine("250 queued")
		case cmd == "RSET":
			rcpt = ""
			_ = tp.PrintfLine("250 ok")
		case cmd == "QUIT":
			f.mu.Lock()
			f.quit = true
			f.mu.Unlock()
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

func (f *fakeRelay) snapshot() (authed, quit bool, msgs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.messages))
	for k, v := range f.messages {
		out[k] = v
	}
	return f.authed, f.quit, out
}

// relayTLS returns a server config carrying httptest's certificate and a
// client config that trusts it.
func relayTLS(t *testing.T) (server, client *tls.Config) {
	t.Helper()
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return &tls.Config{Certificates: srv.TLS.Certificates},
		&tls.Config{RootCAs: pool, ServerName: "example.com"}
}

func testMail(port int, rcpts ...string) *Mail {
	m := NewMail(MailConfig{
		Host:       "127.0.0.1",
		Port:       port,
		Username:   "monitor@example.org",
		Password:   "secret",
		From:       "no-reply@example.org",
		Recipients: rcpts,
		Timeout:    2 * time.Second,
	}, nil)
	m.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	return m
}

func downReport() domain.Report {
	return domain.Report{
		RunID:        "run-1",
		Down:         []string{"b.test"},
		Up:           []string{"a.test"},
		Priority:     domain.PriorityHigh,
		ShouldNotify: true,
		Subject:      "Server Status Report - [2026-10-17 09:00:00]",
		Body:         "Server Status Report - [2026-10-17 09:00:00]\n\nServers down: [b.test]\n",
	}
}

func TestMail_SendsOneMessagePerRecipient(t *testing.T) {
	relay := newFakeRelay(t)
	m := testMail(relay.port(), "ops@example.org", "dev@example.org")

	d, err := m.Send(context.Background(), downReport())
	require.NoError(t, err)
	assert.Equal(t, MailClosed, d.State)
	assert.Equal(t, []string{"ops@example.org", "dev@example.org"}, d.Sent)

	authed, quit, msgs := relay.snapshot()
	assert.True(t, authed)
	assert.True(t, quit)
	require.Len(t, msgs, 2)

	msg := msgs["ops@example.org"]
	assert.Contains(t, msg, "To: ops@example.org\n")
	assert.NotContains(t, msg, "dev@example.org")
	assert.Contains(t, msg, "From: no-reply@example.org\n")
	assert.Contains(t, msg, "Sender: no-reply@example.org\n")
	assert.Contains(t, msg, "Subject: Server Status Report - [2026-10-17 09:00:00]\n")
	assert.Contains(t, msg, "X-Priority: 1\n")
	assert.Contains(t, msg, "Message-ID: <run-1.0@example.org>\n")
	assert.Contains(t, msg, "Servers down: [b.test]")
}

func TestMail_RecipientFailureDoesNotStopOthers(t *testing.T) {
	relay := newFakeRelay(t, func(f *fakeRelay) { f.rejectRcpt["gone@example.org"] = true })
	m := testMail(relay.port(), "ops@example.org", "gone@example.org", "dev@example.org")

	d, err := m.Send(context.Background(), downReport())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSession))
	assert.Contains(t, err.Error(), "gone@example.org")
	assert.Equal(t, MailClosed, d.State)
	assert.Equal(t, []string{"ops@example.org", "dev@example.org"}, d.Sent)
	assert.Equal(t, []string{"gone@example.org"}, d.Failed)

	_, quit, msgs := relay.snapshot()
	assert.True(t, quit, "session must be closed after failed sends")
	assert.Len(t, msgs, 2)
}

func TestMail_AuthFailureIsSessionError(t *testing.T) {
	relay := newFakeRelay(t, func(f *fakeRelay) { f.failAuth = true })
	m := testMail(relay.port(), "ops@example.org")

	d, err := m.Send(context.Background(), downReport())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSession))
	assert.Equal(t, MailFailed, d.State)

	_, _, msgs := relay.snapshot()
	assert.Empty(t, msgs)
}

func TestMail_UnreachableRelayIsSessionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	err = testMail(port, "ops@example.org").Deliver(context.Background(), downReport())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSession))
}

func TestMail_StartTLSRequiredButNotOffered(t *testing.T) {
	relay := newFakeRelay(t)
	m := testMail(relay.port(), "ops@example.org")
	m.cfg.StartTLS = true

	_, err := m.Send(context.Background(), downReport())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSession))
	assert.Contains(t, err.Error(), "STARTTLS")
}

func TestMail_StartTLSUpgradesBeforeAuth(t *testing.T) {
	serverTLS, clientTLS := relayTLS(t)
	relay := newFakeRelay(t, func(f *fakeRelay) { f.tlsConfig = serverTLS })
	m := testMail(relay.port(), "ops@example.org", "dev@example.org")
	m.cfg.StartTLS = true
	m.cfg.TLSConfig = clientTLS

	d, err := m.Send(context.Background(), downReport())
	require.NoError(t, err)
	assert.Equal(t, MailClosed, d.State)
	assert.Equal(t, []string{"ops@example.org", "dev@example.org"}, d.Sent)

	authed, quit, msgs := relay.snapshot()
	assert.True(t, authed)
	assert.True(t, quit)
	assert.Len(t, msgs, 2)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.True(t, relay.authedTLS, "credentials must only be sent after the upgrade")
}

func TestMail_StartTLSUntrustedRelayIsSessionError(t *testing.T) {
	serverTLS, _ := relayTLS(t)
	relay := newFakeRelay(t, func(f *fakeRelay) { f.tlsConfig = serverTLS })
	m := testMail(relay.port(), "ops@example.org")
	m.cfg.StartTLS = true
	m.cfg.TLSConfig = &tls.Config{ServerName: "example.com"}

	_, err := m.Send(context.Background(), downReport())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSession))

	authed, _, msgs := relay.snapshot()
	assert.False(t, authed)
	assert.Empty(t, msgs)
}

func TestMail_EachRecipientGetsFullTimeout(t *testing.T) {
	// every DATA reply takes well over half the timeout, so the three sends
	// together outlast it
	relay := newFakeRelay(t, func(f *fakeRelay) { f.dataDelay = 150 * time.Millisecond })
	m := testMail(relay.port(), "a@example.org", "b@example.org", "c@example.org")
	m.cfg.Timeout = 250 * time.Millisecond

	d, err := m.Send(context.Background(), downReport())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.org", "b@example.org", "c@example.org"}, d.Sent)
	assert.Empty(t, d.Failed)

	_, quit, _ := relay.snapshot()
	assert.True(t, quit)
}

func TestMail_SkipsHealthyReport(t *testing.T) {
	// nothing listens on port 1; a dial would fail the test
	m := testMail(1, "ops@example.org")
	d, err := m.Send(context.Background(), domain.Report{ShouldNotify: false})
	require.NoError(t, err)
	assert.Equal(t, MailSkipped, d.State)
	assert.Empty(t, d.Sent)
}

func TestMail_PriorityHeaderMapping(t *testing.T) {
	m := testMail(25)
	for p, want := range map[domain.Priority]string{
		domain.PriorityLow:    "X-Priority: 5\r\n",
		domain.PriorityNormal: "X-Priority: Normal\r\n",
		domain.PriorityHigh:   "X-Priority: 1\r\n",
	} {
		r := downReport()
		r.Priority = p
		msg := string(m.compose(r, "ops@example.org", 0))
		assert.Contains(t, msg, want, p.String())
	}
}

func TestMailDomain(t *testing.T) {
	assert.Equal(t, "example.org", mailDomain("no-reply@example.org"))
	assert.Equal(t, "localhost", mailDomain("nobody"))
	assert.Equal(t, 8025, NewMail(MailConfig{Port: 8025}, nil).cfg.Port)
	assert.Equal(t, 587, NewMail(MailConfig{}, nil).cfg.Port)
}
