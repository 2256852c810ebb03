package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs/retry"
)

type SMTPConfig struct {
	Addr               string        `mapstructure:"addr"`
	From               string        `mapstructure:"from"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	UseTLS             bool          `mapstructure:"use_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SubjPrefix         string        `mapstructure:"subj_prefix"`
}

// Mailer sends alerts to the intent's recipients over SMTP.
type Mailer struct {
	addr       string
	auth       smtp.Auth
	useTLS     bool
	insecure   bool
	timeout    time.Duration
	from       string
	subjPrefix string

	log *zap.Logger
}

// NewMailer returns nil when no SMTP server is configured.
func NewMailer(cfg SMTPConfig) *Mailer {
	if cfg.Addr == "" {
		return nil
	}
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, host(cfg.Addr))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Mailer{
		addr:       cfg.Addr,
		auth:       auth,
		useTLS:     cfg.UseTLS,
		insecure:   cfg.InsecureSkipVerify,
		timeout:    cfg.Timeout,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        zap.L().With(zap.String("component", "notifier.mailer")),
	}
}

func (m *Mailer) WithLogger(l *zap.Logger) *Mailer {
	if l == nil {
		return m
	}
	cp := *m
	cp.log = l.With(zap.String("component", "notifier.mailer"))
	return &cp
}

func (m *Mailer) Name() string { return "email" }

func (m *Mailer) Deliver(ctx context.Context, msg Message) error {
	to := recipients(msg.Recipients)
	if len(to) == 0 {
		return nil
	}
	subj := strings.TrimSpace(headerValue(m.subjPrefix + " " + msg.Subject))
	raw := []byte(
		"From: " + headerValue(m.from) + "\r\n" +
			"To: " + strings.Join(to, ", ") + "\r\n" +
			"Subject: " + mime.QEncoding.Encode("utf-8", subj) + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" + strings.ReplaceAll(msg.Body, "\n", "\r\n") + "\r\n")

	start := time.Now()
	log := m.log.With(
		zap.String("smtp_addr", m.addr),
		zap.Bool("tls", m.useTLS),
		zap.Strings("to", to),
		zap.String("subject", subj),
	)

	if err := m.send(ctx, to, raw); err != nil {
		log.Error("sendmail failed", zap.Error(err))
		return smtpPermanent(err)
	}
	log.Info("email sent", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Mailer) send(ctx context.Context, to []string, raw []byte) error {
	dialer := net.Dialer{Timeout: m.timeout}
	var (
		conn net.Conn
		err  error
	)
	if m.useTLS {
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{
			ServerName:         host(m.addr),
			InsecureSkipVerify: m.insecure,
		}}
		conn, err = td.DialContext(ctx, "tcp", m.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	c, err := smtp.NewClient(conn, host(m.addr))
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Close() }()

	if !m.useTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host(m.addr), InsecureSkipVerify: m.insecure}); err != nil {
				return err
			}
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	var rcptErrs []error
	accepted := 0
	for _, addr := range to {
		if err := c.Rcpt(addr); err != nil {
			rcptErrs = append(rcptErrs, err)
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return errors.Join(rcptErrs...)
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := c.Quit(); err != nil {
		return err
	}
	// the message already went to the accepted recipients
	return retry.Permanent(errors.Join(rcptErrs...))
}

// smtpPermanent marks 5xx replies so delivery is not retried.
func smtpPermanent(err error) error {
	var te *textproto.Error
	if errors.As(err, &te) && te.Code >= 500 {
		return retry.Permanent(err)
	}
	return err
}

// headerValue folds line breaks into spaces so tenant data cannot start a
// new header line.
func headerValue(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, v)
}

// recipients drops blanks and addresses carrying line breaks.
func recipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" || strings.ContainsAny(r, "\r\n") {
			continue
		}
		out = append(out, r)
	}
	return out
}

func host(addr string) string {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return h
}
