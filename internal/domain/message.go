package domain

import "strings"

// Message is a fully rendered, transport-ready email.
type Message struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Cc          []string          `json:"cc,omitempty"`
	Bcc         []string          `json:"bcc,omitempty"`
	ReplyTo     []string          `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
}

// Attachment is a file carried with a Message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// Recipients returns every envelope address (to, cc and bcc).
func (m *Message) Recipients() []string {
	all := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	all = append(all, m.To...)
	all = append(all, m.Cc...)
	all = append(all, m.Bcc...)
	return all
}

// Validate checks that the message can be handed to a transport.
func (m *Message) Validate() error {
	if len(m.Recipients()) == 0 {
		return ErrInvalidRecipient
	}
	return nil
}

// Reroute replaces every recipient with a single sink address.
func (m *Message) Reroute(sink string) {
	m.To = []string{sink}
	m.Cc = nil
	m.Bcc = nil
}

// AddressDomain returns the lower-cased domain part of an address, or "" if none.
func AddressDomain(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimRight(addr[at+1:], ">"))
}
