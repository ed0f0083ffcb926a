// Package notify implements the Notifier: rendering the day's digest to
// HTML and transmitting it to each recipient over SMTP in isolation.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"time"

	"briefloom/internal/digest"
	"briefloom/internal/logging"
)

// Config configures a Notifier.
type Config struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string

	// ImplicitTLS dials straight into TLS (typically port 465). When false
	// the connection starts plaintext and upgrades via STARTTLS.
	ImplicitTLS bool

	Timeout    time.Duration // default 30s, per-recipient SMTP timeout
	RetryCount int           // default 3
	MaxBackoff time.Duration // default 30s

	// TemplatePath, if set, is parsed as the digest HTML template. If it
	// does not exist or is empty, the built-in fallback template is used.
	TemplatePath string

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Result tallies per-recipient send outcomes for one digest.
type Result struct {
	SuccessCount int
	FailureCount int
	Errors       map[string]error
}

// Success reports whether at least one recipient received the digest.
func (r Result) Success() bool { return r.SuccessCount > 0 }

// Notifier renders and transmits digests. Sent fires after every Send call
// that renders the digest, whether or not any recipient succeeded. Nothing
// in this module waits on Sent; the admin websocket endpoints do not push
// digest events.
type Notifier struct {
	cfg    Config
	tmpl   *template.Template
	logger *slog.Logger
	Sent   *Signal

	// sendFn defaults to sendSMTP; tests override it to avoid a real
	// network connection.
	sendFn func(ctx context.Context, cfg Config, to string, msg []byte) error
}

// New constructs a Notifier, parsing cfg.TemplatePath if set.
func New(cfg Config) (*Notifier, error) {
	cfg = cfg.withDefaults()
	tmpl, err := loadTemplate(cfg.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("notify: load template: %w", err)
	}
	n := &Notifier{
		cfg:    cfg,
		tmpl:   tmpl,
		logger: logging.Default(cfg.Logger).With("component", "notifier"),
		Sent:   NewSignal(),
	}
	n.sendFn = sendSMTP
	return n, nil
}

func loadTemplate(path string) (*template.Template, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return template.ParseFiles(path)
		}
	}
	return template.New("digest").Parse(fallbackTemplate)
}

// Send renders d once and transmits it to every recipient in isolation: a
// per-recipient failure is logged and does not stop the others, and no
// recipient ever sees another recipient's address (no BCC, no shared To).
func (n *Notifier) Send(ctx context.Context, d *digest.Digest, recipients []string, chart []byte) (Result, error) {
	html, err := n.renderHTML(d)
	if err != nil {
		return Result{}, fmt.Errorf("notify: render html: %w", err)
	}

	subject := fmt.Sprintf("AI Digest - %s", d.Date)
	result := Result{Errors: make(map[string]error)}

	for _, to := range recipients {
		msg, err := buildMessage(n.cfg.From, to, subject, html, chart)
		if err != nil {
			n.logger.Error("build message failed", "error", err, "recipient", to)
			result.FailureCount++
			result.Errors[to] = err
			continue
		}

		if err := n.sendWithRetry(ctx, to, msg); err != nil {
			n.logger.Error("send failed", "error", err, "recipient", to)
			result.FailureCount++
			result.Errors[to] = err
			continue
		}
		result.SuccessCount++
	}

	n.Sent.Notify()
	return result, nil
}

func (n *Notifier) renderHTML(d *digest.Digest) (string, error) {
	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sendWithRetry attempts delivery to one recipient up to cfg.RetryCount
// times, backing off 2^attempt seconds capped at cfg.MaxBackoff between
// attempts, mirroring the LLM gateway's retry/backoff idiom.
func (n *Notifier) sendWithRetry(ctx context.Context, to string, msg []byte) error {
	var lastErr error
	for attempt := 0; attempt < n.cfg.RetryCount; attempt++ {
		lastErr = n.sendFn(ctx, n.cfg, to, msg)
		if lastErr == nil {
			return nil
		}
		n.logger.Warn("smtp attempt failed", "recipient", to, "attempt", attempt+1, "error", lastErr)
		if attempt == n.cfg.RetryCount-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(attempt, n.cfg.MaxBackoff)):
		}
	}
	return lastErr
}

func backoffFor(attempt int, maxBackoff time.Duration) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return min(d, maxBackoff)
}

// sendSMTP delivers msg to a single recipient, using implicit TLS or
// STARTTLS per cfg.ImplicitTLS.
func sendSMTP(ctx context.Context, cfg Config, to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)

	var conn net.Conn
	var err error
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if cfg.ImplicitTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.SMTPHost})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(cfg.Timeout))

	client, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if !cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return client.Quit()
}
