package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/ricirt/pigeonpost/internal/domain"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPOptions configures an SMTPTransport.
type SMTPOptions struct {
	Host        string
	Port        int
	Username    string
	Password    string
	StartTLS    bool
	Timeout     time.Duration
	DefaultFrom string
}

// SMTPTransport delivers over one SMTP session per dispatch run.
type SMTPTransport struct {
	opts SMTPOptions
}

func NewSMTPTransport(opts SMTPOptions) *SMTPTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSMTPTimeout
	}
	return &SMTPTransport{opts: opts}
}

func (t *SMTPTransport) Dial(ctx context.Context) (Conn, error) {
	policy := mail.NoTLS
	if t.opts.StartTLS {
		policy = mail.TLSMandatory
	}
	opts := []mail.Option{
		mail.WithPort(t.opts.Port),
		mail.WithTimeout(t.opts.Timeout),
		mail.WithDialContextFunc(t.dialContext),
		mail.WithTLSPolicy(policy),
	}
	if t.opts.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.opts.Username),
			mail.WithPassword(t.opts.Password),
		)
	}

	c, err := mail.NewClient(t.opts.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("smtp connect: %w", err)
	}
	return &smtpConn{client: c, defaultFrom: t.opts.DefaultFrom}, nil
}

// dialContext opens the TCP connection with a deadline already set, so the
// greeting and the EHLO, STARTTLS and AUTH exchanges cannot hang.
func (t *SMTPTransport) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: t.opts.Timeout}
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := nc.SetDeadline(time.Now().Add(t.opts.Timeout)); err != nil {
		nc.Close()
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	return nc, nil
}

type smtpConn struct {
	client      *mail.Client
	defaultFrom string
}

func (c *smtpConn) Send(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg = withDefaultFrom(msg, c.defaultFrom)
	if err := msg.Validate(); err != nil {
		return err
	}

	m, err := newMailMsg(msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	// a rejected message leaves the session reset for the next one
	if err := c.client.Send(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (c *smtpConn) Close() error {
	return c.client.Close()
}
