// Package payload stores rendered messages as self-describing Avro object
// container blobs: every blob carries the writer schema in its header, so a
// stored outbox entry can be decoded without knowing which build produced it.
package payload

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hamba/avro/v2/ocf"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// messageSchema is the persisted shape of domain.Message. Fields may be added
// with defaults; existing fields must not change type.
const messageSchema = `{
  "type": "record",
  "name": "Message",
  "namespace": "io.pigeonpost.outbox",
  "fields": [
    {"name": "from", "type": "string", "default": ""},
    {"name": "to", "type": {"type": "array", "items": "string"}, "default": []},
    {"name": "cc", "type": {"type": "array", "items": "string"}, "default": []},
    {"name": "bcc", "type": {"type": "array", "items": "string"}, "default": []},
    {"name": "reply_to", "type": {"type": "array", "items": "string"}, "default": []},
    {"name": "subject", "type": "string", "default": ""},
    {"name": "body", "type": "string", "default": ""},
    {"name": "html_body", "type": "string", "default": ""},
    {"name": "headers", "type": {"type": "map", "values": "string"}, "default": {}},
    {"name": "attachments", "type": {"type": "array", "items": {
      "type": "record",
      "name": "Attachment",
      "fields": [
        {"name": "filename", "type": "string"},
        {"name": "content_type", "type": "string"},
        {"name": "content", "type": "bytes"}
      ]
    }}, "default": []}
  ]
}`

var errEmptyPayload = errors.New("payload contains no message")

type messageRecord struct {
	From        string             `avro:"from"`
	To          []string           `avro:"to"`
	Cc          []string           `avro:"cc"`
	Bcc         []string           `avro:"bcc"`
	ReplyTo     []string           `avro:"reply_to"`
	Subject     string             `avro:"subject"`
	Body        string             `avro:"body"`
	HTMLBody    string             `avro:"html_body"`
	Headers     map[string]string  `avro:"headers"`
	Attachments []attachmentRecord `avro:"attachments"`
}

type attachmentRecord struct {
	Filename    string `avro:"filename"`
	ContentType string `avro:"content_type"`
	Content     []byte `avro:"content"`
}

// Encode serializes a message into a deflate-compressed Avro container.
func Encode(msg *domain.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(messageSchema, &buf, ocf.WithCodec(ocf.Deflate))
	if err != nil {
		return nil, fmt.Errorf("create payload encoder: %w", err)
	}
	if err := enc.Encode(toRecord(msg)); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flush payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads the single message held by an Avro container blob.
func Decode(data []byte) (*domain.Message, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	if !dec.HasNext() {
		if err := dec.Error(); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return nil, errEmptyPayload
	}
	var rec messageRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return fromRecord(&rec), nil
}

func toRecord(m *domain.Message) messageRecord {
	rec := messageRecord{
		From:     m.From,
		To:       m.To,
		Cc:       m.Cc,
		Bcc:      m.Bcc,
		ReplyTo:  m.ReplyTo,
		Subject:  m.Subject,
		Body:     m.Body,
		HTMLBody: m.HTMLBody,
		Headers:  m.Headers,
	}
	for _, a := range m.Attachments {
		rec.Attachments = append(rec.Attachments, attachmentRecord{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	return rec
}

// fromRecord maps empty collections back to nil so a message survives a
// store-and-reload round trip unchanged.
func fromRecord(rec *messageRecord) *domain.Message {
	m := &domain.Message{
		From:     rec.From,
		To:       nilIfEmpty(rec.To),
		Cc:       nilIfEmpty(rec.Cc),
		Bcc:      nilIfEmpty(rec.Bcc),
		ReplyTo:  nilIfEmpty(rec.ReplyTo),
		Subject:  rec.Subject,
		Body:     rec.Body,
		HTMLBody: rec.HTMLBody,
	}
	if len(rec.Headers) > 0 {
		m.Headers = rec.Headers
	}
	for _, a := range rec.Attachments {
		m.Attachments = append(m.Attachments, domain.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	return m
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
