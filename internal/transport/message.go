package transport

import (
	"bytes"
	"fmt"
	"net/textproto"
	"sort"

	mail "github.com/wneessen/go-mail"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// newMailMsg converts a rendered Message for the SMTP client. Bcc addresses
// are envelope recipients only and never appear in the headers.
func newMailMsg(msg *domain.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", msg.From, err)
	}
	if len(msg.To) > 0 {
		if err := m.To(msg.To...); err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("cc: %w", err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("bcc: %w", err)
		}
	}
	if len(msg.ReplyTo) > 0 {
		m.SetGenHeader(mail.HeaderReplyTo, msg.ReplyTo...)
	}

	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetGenHeader(mail.Header(textproto.CanonicalMIMEHeaderKey(k)), msg.Headers[k])
	}

	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Content),
			mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return m, nil
}
