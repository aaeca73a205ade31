package smtp

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mailverify-auth/internal/config"
	"github.com/mailverify-auth/internal/pkg/id"
)

// Mailer sends emails.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

var (
	ErrNotConfigured = errors.New("SMTP credentials not configured")
	ErrClosed        = errors.New("mail transport closed")
)

const implicitTLSPort = "465"

// Transport is a Mailer backed by an SMTP relay. It is safe for concurrent use.
// TLS setup happens once on first send; a failed setup is remembered and every
// later send reports it until the process restarts.
type Transport struct {
	cfg    config.SMTP
	dialer *net.Dialer

	once    sync.Once
	tlsConf *tls.Config
	initErr error

	closed atomic.Bool
}

func NewTransport(cfg config.SMTP) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Transport{cfg: cfg, dialer: &net.Dialer{Timeout: cfg.Timeout}}
}

func (t *Transport) init() error {
	t.once.Do(func() {
		roots, err := x509.SystemCertPool()
		if err != nil {
			t.initErr = fmt.Errorf("failed to initialize mail transport: %w", err)
			return
		}
		t.tlsConf = &tls.Config{ServerName: t.cfg.Host, RootCAs: roots, MinVersion: tls.VersionTLS12}
	})
	return t.initErr
}

// SendEmail delivers a plaintext message to a single recipient. It blocks until the
// server accepts or rejects the message, or until the configured timeout elapses.
func (t *Transport) SendEmail(to, subject, body string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.cfg.Username == "" || t.cfg.Password == "" {
		return ErrNotConfigured
	}
	if err := t.init(); err != nil {
		return err
	}

	msg := t.buildMessage(to, subject, body, time.Now())
	if err := t.deliver(to, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// Close releases the transport. Sends after Close fail with ErrClosed.
func (t *Transport) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *Transport) deliver(to string, msg []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)

	var conn net.Conn
	var err error
	if t.cfg.Port == implicitTLSPort {
		conn, err = tls.DialWithDialer(t.dialer, "tcp", addr, t.tlsConf)
	} else {
		conn, err = t.dialer.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	// One deadline bounds the whole SMTP exchange.
	if err := conn.SetDeadline(time.Now().Add(t.cfg.Timeout)); err != nil {
		conn.Close()
		return err
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if _, isTLS := conn.(*tls.Conn); !isTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(t.tlsConf); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		} else if !isLocalhost(t.cfg.Host) {
			return errors.New("server does not support STARTTLS")
		}
	}

	if ok, _ := c.Extension("AUTH"); !ok {
		return errors.New("server does not support AUTH")
	}
	if err := c.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(t.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}

func (t *Transport) buildMessage(to, subject, body string, now time.Time) []byte {
	from := t.cfg.From
	if t.cfg.FromName != "" {
		from = (&mail.Address{Name: t.cfg.FromName, Address: t.cfg.From}).String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Message-ID: %s\r\n", id.MessageID(now, domainOf(t.cfg.From, t.cfg.Host)))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func domainOf(addr, fallback string) string {
	if at := strings.LastIndexByte(addr, '@'); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return fallback
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
