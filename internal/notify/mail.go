package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// ErrSession means no usable relay session could be established. Nothing
// was sent when it is returned.
var ErrSession = errors.New("mail relay session")

// X-Priority values understood by Thunderbird and Exchange.
var priorityHeader = map[domain.Priority]string{
	domain.PriorityLow:    "5",
	domain.PriorityNormal: "Normal",
	domain.PriorityHigh:   "1",
}

type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	// StartTLS requires the relay to upgrade the session before auth.
	StartTLS bool
	Timeout  time.Duration
	// TLSConfig is only overridden in tests.
	TLSConfig *tls.Config
}

// MailState is where the mail step ended for a report.
type MailState string

const (
	MailSkipped MailState = "skipped"
	MailFailed  MailState = "failed"
	MailClosed  MailState = "closed"
)

type Delivery struct {
	State  MailState
	Sent   []string
	Failed []string
}

// Mail sends a report to every recipient over one authenticated relay
// session, but only when the report asks for a notification.
type Mail struct {
	cfg    MailConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewMail(cfg MailConfig, logger *zap.Logger) *Mail {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mail{cfg: cfg, logger: logger, now: time.Now}
}

func (m *Mail) Name() string { return "mail" }

func (m *Mail) Deliver(ctx context.Context, r domain.Report) error {
	_, err := m.Send(ctx, r)
	return err
}

// Send is Deliver with the per-recipient outcome. A recipient that fails is
// logged and skipped; the session is closed after all recipients were tried.
func (m *Mail) Send(ctx context.Context, r domain.Report) (Delivery, error) {
	if !r.ShouldNotify {
		m.logger.Info("mail_skipped", zap.String("reason", "all servers up"))
		return Delivery{State: MailSkipped}, nil
	}

	c, conn, err := m.open(ctx)
	if err != nil {
		m.logger.Error("mail_session_failed",
			zap.String("relay", m.addr()),
			zap.Error(err),
		)
		return Delivery{State: MailFailed}, fmt.Errorf("%w: %w", ErrSession, err)
	}

	var (
		d    Delivery
		errs error
	)
	for i, rcpt := range m.cfg.Recipients {
		m.extendDeadline(conn)
		msg := m.compose(r, rcpt, i)
		if err := send(c, m.cfg.From, rcpt, msg); err != nil {
			_ = c.Reset()
			d.Failed = append(d.Failed, rcpt)
			errs = multierr.Append(errs, fmt.Errorf("send to %s: %w", rcpt, err))
			m.logger.Warn("mail_send_failed", zap.String("to", rcpt), zap.Error(err))
			continue
		}
		d.Sent = append(d.Sent, rcpt)
		m.logger.Info("mail_sent", zap.String("to", rcpt), zap.String("priority", r.Priority.String()))
	}

	m.extendDeadline(conn)
	if err := c.Quit(); err != nil {
		_ = c.Close()
	}
	d.State = MailClosed
	return d, errs
}

func (m *Mail) addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// extendDeadline starts a fresh Timeout window for the next exchange.
func (m *Mail) extendDeadline(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
}

// open dials the relay and returns the client along with the raw
// connection, whose deadline is refreshed per exchange.
func (m *Mail) open(ctx context.Context) (*smtp.Client, net.Conn, error) {
	d := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", m.addr())
	if err != nil {
		return nil, nil, err
	}
	m.extendDeadline(conn)

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	if m.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			c.Close()
			return nil, nil, errors.New("relay does not offer STARTTLS")
		}
		tlsCfg := m.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: m.cfg.Host}
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("starttls: %w", err)
		}
	}

	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("auth: %w", err)
		}
	}
	return c, conn, nil
}

func send(c *smtp.Client, from, to string, msg []byte) error {
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// compose builds one message per recipient so each copy shows a single To.
func (m *Mail) compose(r domain.Report, to string, seq int) []byte {
	var b strings.Builder
	header := func(k, v string) { b.WriteString(k + ": " + v + "\r\n") }

	header("From", m.cfg.From)
	header("Sender", m.cfg.From)
	header("To", to)
	header("Subject", r.Subject)
	header("Date", m.now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s.%d@%s>", r.RunID, seq, mailDomain(m.cfg.From)))
	if p, ok := priorityHeader[r.Priority]; ok {
		header("X-Priority", p)
	}
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(r.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func mailDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], "<> ")
	}
	return "localhost"
}
